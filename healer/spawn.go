package healer

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/openhealer/healer/healer/internal/exec"
)

// ProcessSpawner is the production Spawner: it execs spec.Command detached
// from the daemon's own session, redirects its stdout/stderr to per-process
// log files, drops privileges per RunAsUser, and records the resulting PID
// to a PID file so the pid Monitor variant has somewhere to look.
type ProcessSpawner struct {
	LogDirectory     string
	PIDFileDirectory string
	// WorkingDirectory is the global working_directory every recovery
	// child is started in, regardless of the daemon's own cwd.
	WorkingDirectory string

	// startProc is exec.Start by default; tests override it with
	// exec.NewSleepProcess so Spawn can be exercised without forking a
	// real binary.
	startProc func(exec.Spec) (exec.Process, error)
}

var _ Spawner = (*ProcessSpawner)(nil)

// NewProcessSpawner creates a ProcessSpawner writing logs and PID files
// under the given directories, which must already exist, and starting
// every recovery child in workingDirectory.
func NewProcessSpawner(logDirectory, pidFileDirectory, workingDirectory string) *ProcessSpawner {
	return &ProcessSpawner{
		LogDirectory:     logDirectory,
		PIDFileDirectory: pidFileDirectory,
		WorkingDirectory: workingDirectory,
		startProc:        exec.Start,
	}
}

// Spawn starts spec.Command and returns its PID.
func (s *ProcessSpawner) Spawn(spec ProcessSpec) (int, error) {
	cred, err := credentialFor(spec)
	if err != nil {
		return 0, errors.Wrapf(err, "resolving run_as_user for %q", spec.Name)
	}

	outFile, err := s.openLog(spec.Name, "out")
	if err != nil {
		return 0, errors.Wrapf(err, "opening stdout log for %q", spec.Name)
	}
	defer outFile.Close()

	errFile, err := s.openLog(spec.Name, "err")
	if err != nil {
		return 0, errors.Wrapf(err, "opening stderr log for %q", spec.Name)
	}
	defer errFile.Close()

	startProc := s.startProc
	if startProc == nil {
		startProc = exec.Start
	}

	proc, err := startProc(exec.Spec{
		Path:       spec.Command,
		Args:       spec.Args,
		Dir:        s.WorkingDirectory,
		Stdout:     outFile,
		Stderr:     errFile,
		Credential: cred,
	})
	if err != nil {
		return 0, errors.Wrapf(err, "starting %q", spec.Name)
	}

	// A PID file write failure only degrades the pid Monitor variant; the
	// process itself is already running, so this is not treated as a failed
	// spawn.
	_ = s.writePIDFile(spec.Name, proc.PID())

	return proc.PID(), nil
}

func credentialFor(spec ProcessSpec) (*exec.Credential, error) {
	if spec.RunAsRoot || spec.RunAsUser == "" {
		return nil, nil
	}

	u, err := user.Lookup(spec.RunAsUser)
	if err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("user %q has non-numeric uid %q", spec.RunAsUser, u.Uid)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("user %q has non-numeric gid %q", spec.RunAsUser, u.Gid)
	}

	return &exec.Credential{UID: uint32(uid), GID: uint32(gid)}, nil
}

func (s *ProcessSpawner) openLog(name, stream string) (*os.File, error) {
	path := filepath.Join(s.LogDirectory, fmt.Sprintf("%s.%s.log", name, stream))
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

func (s *ProcessSpawner) pidFilePath(name string) string {
	return filepath.Join(s.PIDFileDirectory, name+".pid")
}

func (s *ProcessSpawner) writePIDFile(name string, pid int) error {
	return os.WriteFile(s.pidFilePath(name), []byte(strconv.Itoa(pid)), 0640)
}
