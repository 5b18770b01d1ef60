// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvBusURL names the bus endpoint of the live session daemon the E2E
// suite runs against.
const EnvBusURL = "PATCHBAY_GO_E2E_BUS_URL"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireBusURL returns the live bus endpoint. It crashes the process when
// none is configured, since no E2E test can run without one.
func RequireBusURL() string {
	url := os.Getenv(EnvBusURL)
	if url == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", EnvBusURL)
		fmt.Fprintln(os.Stderr, "Set it in .env or as an environment variable.")
		fmt.Fprintln(os.Stderr, "Example: "+EnvBusURL+"=ws://127.0.0.1:7140/bus")
		os.Exit(1)
	}

	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not a ws:// or wss:// URL\n", EnvBusURL, url)
		os.Exit(1)
	}

	return url
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// Isolate points HOME and the XDG directories at fresh directories under
// root so a test run never touches the user's config, journal, or PID
// file. It returns the config directory the binary will read.
func Isolate(root, appName string) string {
	dirs := map[string]string{
		"HOME":            filepath.Join(root, "home"),
		"XDG_CONFIG_HOME": filepath.Join(root, "config"),
		"XDG_DATA_HOME":   filepath.Join(root, "data"),
		"XDG_CACHE_HOME":  filepath.Join(root, "cache"),
	}

	for env, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: creating dir %s: %v\n", dir, err)
			os.Exit(1)
		}

		os.Setenv(env, dir)
	}

	appConfigDir := filepath.Join(dirs["XDG_CONFIG_HOME"], appName)
	if err := os.MkdirAll(appConfigDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: creating app config dir: %v\n", err)
		os.Exit(1)
	}

	return appConfigDir
}
