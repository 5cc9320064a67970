package healer

import (
	"context"
	"fmt"
)

// Monitor watches one supervised process for liveness and publishes
// ProcessEvent to a Bus when it notices trouble. Run blocks until ctx is
// cancelled; it must not return early on its own except for a fatal setup
// error (e.g. eBPF unavailable), which it reports via the returned error
// rather than a panic.
type Monitor interface {
	Run(ctx context.Context) error
}

// newMonitor dispatches spec.Monitor to its concrete implementation. The set
// of variants is closed, so a type switch is preferred over a registry.
func newMonitor(spec ProcessSpec, bus *Bus) (Monitor, error) {
	switch m := spec.Monitor.(type) {
	case PidMonitorSpec:
		return &pidMonitor{name: spec.Name, spec: m, bus: bus}, nil
	case NetworkMonitorSpec:
		return &networkMonitor{name: spec.Name, spec: m, bus: bus}, nil
	case EbpfMonitorSpec:
		return &ebpfMonitor{name: spec.Name, spec: m, bus: bus}, nil
	default:
		return nil, fmt.Errorf("healer: unsupported monitor spec %T for %q", spec.Monitor, spec.Name)
	}
}

// Handle is a running Monitor's remote control: Stop cancels it and blocks
// until its goroutine has actually returned. It corresponds to a single
// (name, fingerprint) pair so the Manager can tell whether a reload actually
// changes anything about a running monitor.
type Handle struct {
	Name        string
	Fingerprint string

	cancel context.CancelFunc
	done   chan error
}

// startMonitor launches mon in its own goroutine and returns a Handle for
// it. journal receives EventMonitorStarted immediately and
// EventMonitorStopped once mon.Run returns for any reason; a non-nil return
// from Run is additionally reported via EventWarning.
func startMonitor(name, fingerprint string, kind MonitorKind, mon Monitor, journal Journaler) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		Name:        name,
		Fingerprint: fingerprint,
		cancel:      cancel,
		done:        make(chan error, 1),
	}

	if journal != nil {
		_ = journal.Write(&EventMonitorStarted{Name: name, Kind: string(kind)})
	}

	go func() {
		err := mon.Run(ctx)
		if err != nil && journal != nil {
			_ = journal.Write(&EventWarning{Component: "monitor:" + name, Error: err.Error()})
		}
		if journal != nil {
			_ = journal.Write(&EventMonitorStopped{Name: name})
		}
		h.done <- err
		close(h.done)
	}()

	return h
}

// Stop cancels the monitor and waits for its goroutine to exit.
func (h *Handle) Stop() error {
	h.cancel()
	return <-h.done
}
