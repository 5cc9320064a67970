package healer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ProcessSpec is the runtime representation of a declared unit of
// supervision, built once by config.Config.ToSpecs and then handed to the
// Manager and Healer. name is its identity across reloads.
type ProcessSpec struct {
	Name      string
	Enabled   bool
	Command   string
	Args      []string
	RunAsRoot bool
	RunAsUser string
	Monitor   MonitorSpec
	Recovery  RecoverySpec
}

// RecoverySpec governs the circuit breaker for a single process. See
// Breaker for the state machine these numbers drive.
type RecoverySpec struct {
	Retries     uint32
	RetryWindow time.Duration
	Cooldown    time.Duration
}

// DefaultRecoverySpec matches the draft config's RegularHealerFields
// default: three recovery attempts inside a minute fill the window, and a
// fourth within it opens the breaker for three minutes.
func DefaultRecoverySpec() RecoverySpec {
	return RecoverySpec{
		Retries:     3,
		RetryWindow: 60 * time.Second,
		Cooldown:    180 * time.Second,
	}
}

// MonitorKind names a MonitorSpec variant for logging and for the
// EventMonitorStarted/Stopped journal entries.
type MonitorKind string

const (
	MonitorKindPid     MonitorKind = "pid"
	MonitorKindNetwork MonitorKind = "network"
	MonitorKindEbpf    MonitorKind = "ebpf"
)

// MonitorSpec is the tagged-union of monitor configurations. Dispatch on the
// concrete type (a type switch in newMonitor) rather than a registry, since
// the set of variants is closed.
type MonitorSpec interface {
	Kind() MonitorKind
	// Fingerprint is a structural hash of the variant and its fields, used
	// by the Manager to decide whether a reload actually changes a given
	// monitor or can be left running untouched.
	Fingerprint() string
}

// PidMonitorSpec polls a PID file.
type PidMonitorSpec struct {
	PIDFilePath string
	Interval    time.Duration
}

func (s PidMonitorSpec) Kind() MonitorKind { return MonitorKindPid }

func (s PidMonitorSpec) Fingerprint() string {
	return fingerprint(string(s.Kind()), s.PIDFilePath, s.Interval.String())
}

// NetworkMonitorSpec probes a TCP or HTTP(S) endpoint.
type NetworkMonitorSpec struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

func (s NetworkMonitorSpec) Kind() MonitorKind { return MonitorKindNetwork }

func (s NetworkMonitorSpec) Fingerprint() string {
	return fingerprint(string(s.Kind()), s.URL, s.Interval.String(), s.Timeout.String())
}

// EbpfMonitorSpec watches the kernel exit tracepoint for a given comm.
type EbpfMonitorSpec struct {
	ProcessName string
}

func (s EbpfMonitorSpec) Kind() MonitorKind { return MonitorKindEbpf }

func (s EbpfMonitorSpec) Fingerprint() string {
	return fingerprint(string(s.Kind()), truncateComm(s.ProcessName))
}

// taskCommLen is the kernel's TASK_COMM_LEN, including the trailing NUL;
// configured process names are truncated to taskCommLen-1 bytes to match
// what the kernel will actually report in comm.
const taskCommLen = 16

func truncateComm(name string) string {
	if len(name) >= taskCommLen {
		return name[:taskCommLen-1]
	}
	return name
}

func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String is used in log lines; it deliberately does not include the
// fingerprint.
func (s ProcessSpec) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.Monitor.Kind())
}
