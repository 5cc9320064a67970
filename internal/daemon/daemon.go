// Package daemon detaches the process from its controlling terminal: the
// same Setsid technique the recovery spawner uses for supervised children,
// applied once to the daemon itself. No third-party daemonize library
// appears anywhere in the retrieval pack, so this is built directly on
// os.StartProcess and syscall.SysProcAttr, matching the level of
// abstraction the teacher's own exec package uses for process creation.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// reexecMarker is set in the child's environment so it knows not to
// daemonize again; forking a real child (rather than calling unix.Fork
// directly) avoids the well-known hazards of fork() in a multi-threaded Go
// runtime, at the cost of re-running package init in the child.
const reexecMarker = "HEALER_DAEMONIZED=1"

// Config describes how to detach and where to record the resulting PID.
type Config struct {
	PIDFilePath string
	// WorkingDirectory becomes the daemon's cwd, so a relative config path
	// given before daemonizing keeps resolving the same way.
	WorkingDirectory string
}

// IsChild reports whether the current process is already the detached
// child, i.e. whether Daemonize has already run in an ancestor.
func IsChild() bool {
	return os.Getenv("HEALER_DAEMONIZED") == "1"
}

// Daemonize re-execs the current binary with the same arguments as a
// detached session leader and exits the parent. It must be called before
// any other setup that shouldn't run twice (the re-exec'd child starts from
// main() again). Callers should check IsChild first and skip Daemonize
// entirely when already detached.
func Daemonize(cfg Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemon: resolve executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	attr := &os.ProcAttr{
		Dir:   cfg.WorkingDirectory,
		Env:   append(os.Environ(), reexecMarker),
		Files: []*os.File{devNull, devNull, devNull},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	child, err := os.StartProcess(exe, os.Args, attr)
	if err != nil {
		return fmt.Errorf("daemon: re-exec: %w", err)
	}

	if cfg.PIDFilePath != "" {
		if err := os.WriteFile(cfg.PIDFilePath, []byte(strconv.Itoa(child.Pid)), 0640); err != nil {
			return fmt.Errorf("daemon: write pid file: %w", err)
		}
	}

	// Release rather than Wait: the child is now independent, and the
	// parent's only job left is to exit so the shell prompt returns.
	if err := child.Release(); err != nil {
		return fmt.Errorf("daemon: release child: %w", err)
	}

	os.Exit(0)
	return nil // unreachable
}
