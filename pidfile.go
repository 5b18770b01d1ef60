package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
)

// errWatcherRunning is returned when the PID file lock is held by another
// watch process.
var errWatcherRunning = errors.New("another watch is already running")

// errNoWatcher is returned when no live watcher owns the PID file.
var errNoWatcher = errors.New("no running watcher")

// watcherInfo is what a running watch records in its PID file: the PID on
// the first line and the bus it mirrors on the second.
type watcherInfo struct {
	PID int
	Bus string
}

// writePIDFile records the current process as the watcher of bus while
// holding an exclusive flock on path. A second watch fails with
// errWatcherRunning until cleanup runs.
func writePIDFile(path, bus string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if info, readErr := readPIDFile(path); readErr == nil {
			return nil, fmt.Errorf("%w (PID %d on %s)", errWatcherRunning, info.PID, info.Bus)
		}

		return nil, fmt.Errorf("%w (could not lock %s)", errWatcherRunning, path)
	}

	fail := func(err error) (func(), error) {
		f.Close()
		return nil, err
	}

	// Truncate only once the lock is ours; sync so "reload" can read the
	// record as soon as the lock is held.
	if err := f.Truncate(0); err != nil {
		return fail(fmt.Errorf("truncating PID file: %w", err))
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), bus); err != nil {
		return fail(fmt.Errorf("writing PID file: %w", err))
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("syncing PID file: %w", err))
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile parses the watcher record at path. The bus line is optional.
func readPIDFile(path string) (watcherInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return watcherInfo{}, fmt.Errorf("reading PID file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)

	var lines []string
	for sc.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}

	if err := sc.Err(); err != nil {
		return watcherInfo{}, fmt.Errorf("reading PID file: %w", err)
	}

	if len(lines) == 0 {
		return watcherInfo{}, fmt.Errorf("invalid PID in %s: file is empty", path)
	}

	pid, err := strconv.Atoi(lines[0])
	if err != nil || pid <= 0 {
		return watcherInfo{}, fmt.Errorf("invalid PID in %s: %q", path, lines[0])
	}

	info := watcherInfo{PID: pid}
	if len(lines) > 1 {
		info.Bus = lines[1]
	}

	return info, nil
}

// sendSIGHUP asks the watcher recorded in pidPath to reload its config and
// returns its record. A PID file naming a dead process is removed.
func sendSIGHUP(pidPath string) (watcherInfo, error) {
	info, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return watcherInfo{}, fmt.Errorf("%w found (no PID file at %s)", errNoWatcher, pidPath)
		}

		return watcherInfo{}, err
	}

	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return watcherInfo{}, fmt.Errorf("finding process %d: %w", info.PID, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return watcherInfo{}, fmt.Errorf("%w: PID %d is gone (stale PID file removed)", errNoWatcher, info.PID)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return watcherInfo{}, fmt.Errorf("sending SIGHUP to watcher (PID %d): %w", info.PID, err)
	}

	return info, nil
}
