package healer

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openhealer/healer/healer/internal/exec"
)

const forever time.Duration = math.MaxInt64

func newNextPID() func() int {
	var pid uint32
	return func() int { return int(atomic.AddUint32(&pid, 1)) }
}

func TestProcessSpawnerWritesPIDFile(t *testing.T) {
	dir := t.TempDir()
	s := NewProcessSpawner(dir, dir, dir)

	nextPID := newNextPID()
	s.startProc = func(exec.Spec) (exec.Process, error) {
		return exec.NewSleepProcess(forever, 0, nextPID()), nil
	}

	spec := ProcessSpec{Name: "widget", Command: "widget-bin"}

	pid, err := s.Spawn(spec)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if pid != 1 {
		t.Fatalf("Spawn() pid = %d, want 1", pid)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "widget.pid"))
	if err != nil {
		t.Fatalf("reading pid file: %v", err)
	}
	if got, _ := strconv.Atoi(string(raw)); got != pid {
		t.Fatalf("pid file contains %q, want %d", raw, pid)
	}
}

func TestProcessSpawnerOpensLogFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewProcessSpawner(dir, dir, dir)

	var sawStdout, sawStderr bool
	s.startProc = func(spec exec.Spec) (exec.Process, error) {
		sawStdout = spec.Stdout != nil
		sawStderr = spec.Stderr != nil
		return exec.NewSleepProcess(forever, 0, 7), nil
	}

	if _, err := s.Spawn(ProcessSpec{Name: "widget", Command: "widget-bin"}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if !sawStdout || !sawStderr {
		t.Fatalf("Spawn() did not pass open log files to exec.Start")
	}

	for _, suffix := range []string{"out", "err"} {
		path := filepath.Join(dir, "widget."+suffix+".log")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected log file %s to exist: %v", path, err)
		}
	}
}

func TestProcessSpawnerRunAsUnknownUserFails(t *testing.T) {
	dir := t.TempDir()
	s := NewProcessSpawner(dir, dir, dir)
	s.startProc = func(exec.Spec) (exec.Process, error) {
		t.Fatal("startProc should not be reached when run_as_user fails to resolve")
		return nil, nil
	}

	spec := ProcessSpec{Name: "widget", Command: "widget-bin", RunAsUser: "definitely-not-a-real-user-12345"}

	if _, err := s.Spawn(spec); err == nil {
		t.Fatal("Spawn() with an unresolvable run_as_user succeeded, want error")
	}
}

func TestProcessSpawnerUsesConfiguredWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	workDir := t.TempDir()
	s := NewProcessSpawner(dir, dir, workDir)

	var gotDir string
	s.startProc = func(spec exec.Spec) (exec.Process, error) {
		gotDir = spec.Dir
		return exec.NewSleepProcess(forever, 0, 9), nil
	}

	if _, err := s.Spawn(ProcessSpec{Name: "widget", Command: "widget-bin"}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if gotDir != workDir {
		t.Fatalf("exec.Spec.Dir = %q, want the spawner's configured working directory %q", gotDir, workDir)
	}
}

func TestProcessSpawnerRunAsRootSkipsCredentialLookup(t *testing.T) {
	dir := t.TempDir()
	s := NewProcessSpawner(dir, dir, dir)

	var gotCredential *exec.Credential
	s.startProc = func(spec exec.Spec) (exec.Process, error) {
		gotCredential = spec.Credential
		return exec.NewSleepProcess(forever, 0, 3), nil
	}

	spec := ProcessSpec{Name: "widget", Command: "widget-bin", RunAsRoot: true}
	if _, err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if gotCredential != nil {
		t.Fatalf("run_as_root spawn set a Credential, want nil")
	}
}
