// Package exec wraps os.StartProcess for the recovery spawn path:
// privilege drop, log redirection, session detachment, and a mockable
// Process interface for testing the healer without forking real binaries.
package exec

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a spawned command, real or mocked.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ExitStatus is a process' terminal status.
type ExitStatus struct {
	PID   int
	Code  int // -1 for interrupted/terminated
	Error error
}

// Credential identifies the uid/gid a spawned process should drop to. A nil
// Credential means "inherit the daemon's own privileges" (run_as_root).
type Credential struct {
	UID uint32
	GID uint32
}

// Spec describes everything needed to spawn a recovery command.
type Spec struct {
	Path       string
	Args       []string
	Dir        string
	Stdout     *os.File
	Stderr     *os.File
	Credential *Credential
}

type process struct{ *os.Process }

var _ Process = process{}

// FindProcess wraps os.FindProcess.
func FindProcess(pid int) (Process, error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}
	return process{p}, nil
}

// Start spawns spec as a detached child: new session, Pdeathsig so it dies
// with the daemon rather than being silently reparented to init under a
// different identity, and an optional uid/gid drop.
func Start(spec Spec) (Process, error) {
	// Lock this goroutine to its OS thread for the duration of the fork, since
	// Credential/Pdeathsig is thread-scoped (see golang.org/issue/27505).
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	attr := &os.ProcAttr{
		Dir:   spec.Dir,
		Files: []*os.File{devNull(), fileOrDevNull(spec.Stdout), fileOrDevNull(spec.Stderr)},
		Sys: &syscall.SysProcAttr{
			Setsid:    true,
			Pdeathsig: syscall.SIGTERM,
		},
	}

	if spec.Credential != nil {
		attr.Sys.Credential = &syscall.Credential{
			Uid: spec.Credential.UID,
			Gid: spec.Credential.GID,
		}
	}

	argv := append([]string{spec.Path}, spec.Args...)

	p, err := os.StartProcess(spec.Path, argv, attr)
	if err != nil {
		return nil, err
	}

	return process{p}, nil
}

func fileOrDevNull(f *os.File) *os.File {
	if f != nil {
		return f
	}
	return devNull()
}

func devNull() *os.File {
	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		// /dev/null is assumed always present; if it isn't, the spawn will
		// fail loudly at StartProcess instead.
		return nil
	}
	return f
}

func (p process) PID() int { return p.Pid }

// Wait blocks for the process to exit. Must be called from the goroutine
// that owns this Process.
func (p process) Wait() ExitStatus {
	state, err := p.Process.Wait()

	status := ExitStatus{PID: p.Pid, Error: err}
	if state != nil {
		status.Code = state.ExitCode()
	} else {
		status.Code = -1
	}
	return status
}

// SignalZero reports whether pid refers to a live, signalable process, using
// the classic kill(pid, 0) liveness probe.
func SignalZero(pid int) (bool, error) {
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, err
	}
}

// ReapChildren drains exited children non-blockingly, as required after any
// spawn that does not itself Wait. It must be called from SIGCHLD handling;
// looping until Wait4 reports ECHILD or EAGAIN empties the zombie queue in
// one pass.
func ReapChildren() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}

type sleepProcess struct {
	once  sync.Once
	stop  chan struct{}
	timer *time.Timer
	delay time.Duration

	pid  int
	exit int32
}

// NewSleepProcess creates a Process that idles for dura before exiting on
// its own, or exits early (after delay) if signaled. Used by tests in place
// of a real fork.
func NewSleepProcess(dura, delay time.Duration, pid int) Process {
	return &sleepProcess{
		stop:  make(chan struct{}),
		timer: time.NewTimer(dura),
		delay: delay,
		pid:   pid,
		exit:  -2,
	}
}

func (m *sleepProcess) PID() int { return m.pid }

func (m *sleepProcess) Signal(sig os.Signal) error {
	var status int32
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		status = 0
	case syscall.SIGKILL:
		status = -1
	default:
		return errors.New("unknown signal")
	}

	go func() {
		if m.delay > 0 && sig != syscall.SIGKILL {
			select {
			case <-time.After(m.delay):
			case <-m.stop:
				return
			}
		}

		if !atomic.CompareAndSwapInt32(&m.exit, -2, status) {
			return
		}

		close(m.stop)
		m.timer.Stop()
	}()

	return nil
}

func (m *sleepProcess) Kill() error {
	return m.Signal(syscall.SIGKILL)
}

func (m *sleepProcess) Wait() ExitStatus {
	m.once.Do(func() {
		select {
		case <-m.stop:
		case <-m.timer.C:
			atomic.StoreInt32(&m.exit, 0)
		}
	})

	return ExitStatus{PID: m.pid, Code: int(atomic.LoadInt32(&m.exit))}
}
