//go:build e2e

package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/patchbay-go/testutil"
)

// The suite runs the built binary against a live session daemon. It needs
// PATCHBAY_GO_E2E_BUS_URL and a loaded studio for the graph tests.

var (
	binaryPath string
	configPath string
)

func TestMain(m *testing.M) {
	moduleRoot := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(moduleRoot, ".env"))
	busURL := testutil.RequireBusURL()

	tmpDir, err := os.MkdirTemp("", "patchbay-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	// Unset app-specific env vars that could leak production settings.
	os.Unsetenv("PATCHBAY_GO_CONFIG")
	os.Unsetenv("PATCHBAY_GO_BUS_URL")
	os.Unsetenv("PATCHBAY_GO_LOG_LEVEL")

	cfgDir := testutil.Isolate(filepath.Join(tmpDir, "isolation"), "patchbay-go")
	configPath = filepath.Join(cfgDir, "config.toml")

	cfg := fmt.Sprintf("[bus]\nurl = %q\n\n[logging]\nlog_level = \"debug\"\n", busURL)
	if err := os.WriteFile(configPath, []byte(cfg), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "writing config: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "patchbay-go")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	build.Dir = moduleRoot
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := runCLIErr(args...)
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

func runCLIErr(args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, append([]string{"--config", configPath}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

type studioStatus struct {
	Daemon string `json:"daemon"`
	State  string `json:"state"`
	Studio string `json:"studio"`
	Rooms  int    `json:"rooms"`
}

func requireStudio(t *testing.T) studioStatus {
	t.Helper()

	stdout, _ := runCLI(t, "--json", "studio", "status")

	var st studioStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))

	if st.Studio == "" {
		t.Skip("no studio loaded on the test daemon")
	}

	return st
}

func TestE2E_StudioStatus(t *testing.T) {
	stdout, _ := runCLI(t, "--json", "studio", "status")

	var st studioStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.Equal(t, "running", st.Daemon)
	assert.NotEmpty(t, st.State)
}

func TestE2E_GraphAndDictRoundTrip(t *testing.T) {
	requireStudio(t)

	stdout, _ := runCLI(t, "--json", "graph")

	var graphs []struct {
		Scope   string `json:"scope"`
		Version uint64 `json:"version"`
		Clients []struct {
			ID   uint64 `json:"id"`
			Name string `json:"name"`
		} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &graphs))
	require.Len(t, graphs, 1)
	assert.Equal(t, "studio", graphs[0].Scope)
	require.NotEmpty(t, graphs[0].Clients, "studio graph has no clients")

	client := fmt.Sprint(graphs[0].Clients[0].ID)
	key := fmt.Sprintf("patchbay-go.e2e.%d", time.Now().UnixNano())

	t.Cleanup(func() {
		_, _, _ = runCLIErr("client", "dict", "drop", client, key)
	})

	runCLI(t, "client", "dict", "set", client, key, "hello")

	value, _ := runCLI(t, "client", "dict", "get", client, key)
	assert.Equal(t, "hello", strings.TrimSpace(value))

	runCLI(t, "client", "dict", "drop", client, key)

	_, _, err := runCLIErr("client", "dict", "get", client, key)
	assert.Error(t, err, "dropped key should not be readable")
}

func TestE2E_RoomsList(t *testing.T) {
	st := requireStudio(t)

	stdout, _ := runCLI(t, "--json", "rooms", "list")

	var rooms []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rooms))
	assert.Len(t, rooms, st.Rooms)
}

func TestE2E_WatchReloadAndShutdown(t *testing.T) {
	requireStudio(t)

	cmd := exec.Command(binaryPath, "--config", configPath, "--json", "watch", "--no-journal")

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	lines := make(chan string, 256)

	go func() {
		defer close(lines)

		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitForEvent(t, lines, "studio+")

	// reload finds the watcher through its PID file.
	_, reloadErr := runCLI(t, "reload")
	assert.Contains(t, reloadErr, "Reload requested")

	require.NoError(t, cmd.Process.Signal(syscall.SIGTERM))

	done := make(chan error, 1)

	go func() {
		// Drain so the process is never blocked on a full pipe.
		for range lines {
		}

		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err, "watch exit\nstderr: %s", stderr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not exit after SIGTERM")
	}

	assert.Contains(t, stderr.String(), "received SIGHUP")
}

func waitForEvent(t *testing.T, lines <-chan string, event string) {
	t.Helper()

	deadline := time.After(10 * time.Second)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("watch output ended before %q", event)
			}

			var ev struct {
				Event string `json:"event"`
			}

			if json.Unmarshal([]byte(line), &ev) == nil && ev.Event == event {
				return
			}
		case <-deadline:
			t.Fatalf("no %q event within 10s", event)
		}
	}
}
