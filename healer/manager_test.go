package healer

import (
	"sort"
	"testing"
	"time"
)

func pidSpec(name, path string) ProcessSpec {
	return ProcessSpec{
		Name:    name,
		Enabled: true,
		Monitor: PidMonitorSpec{PIDFilePath: path, Interval: time.Hour},
	}
}

func TestManagerReconcileStartsAndStops(t *testing.T) {
	bus := NewBus(16)
	m := NewManager(bus, nil)

	errs := m.Reconcile([]ProcessSpec{pidSpec("p", "/tmp/p.pid"), pidSpec("n", "/tmp/n.pid")})
	if len(errs) != 0 {
		t.Fatalf("Reconcile() errors = %v", errs)
	}

	running := m.Running()
	sort.Strings(running)
	if got := running; len(got) != 2 || got[0] != "n" || got[1] != "p" {
		t.Fatalf("Running() = %v, want [n p]", got)
	}

	m.Reconcile([]ProcessSpec{pidSpec("p", "/tmp/p.pid")})
	running = m.Running()
	if len(running) != 1 || running[0] != "p" {
		t.Fatalf("after dropping n, Running() = %v, want [p]", running)
	}

	m.StopAll()
	if len(m.Running()) != 0 {
		t.Fatalf("StopAll() left monitors running: %v", m.Running())
	}
}

func TestManagerReconcileIsIdempotent(t *testing.T) {
	bus := NewBus(16)
	m := NewManager(bus, nil)

	specs := []ProcessSpec{pidSpec("p", "/tmp/p.pid")}
	m.Reconcile(specs)
	before := m.running["p"]

	m.Reconcile(specs)
	after := m.running["p"]

	if before != after {
		t.Fatalf("Reconcile() with an unchanged spec restarted the monitor (handle identity changed)")
	}
}

func TestManagerReconcileRestartsOnFingerprintChange(t *testing.T) {
	bus := NewBus(16)
	m := NewManager(bus, nil)

	m.Reconcile([]ProcessSpec{pidSpec("p", "/tmp/p.pid")})
	before := m.running["p"]

	// Same name, different pid_file_path: the fingerprint changes, so the
	// monitor must be torn down and recreated, not left alone.
	m.Reconcile([]ProcessSpec{pidSpec("p", "/tmp/other.pid")})
	after := m.running["p"]

	if before == after {
		t.Fatalf("Reconcile() left the same handle running after a fingerprint change")
	}
}

func TestManagerReconcileSkipsDisabledSpecs(t *testing.T) {
	bus := NewBus(16)
	m := NewManager(bus, nil)

	spec := pidSpec("p", "/tmp/p.pid")
	spec.Enabled = false

	m.Reconcile([]ProcessSpec{spec})
	if len(m.Running()) != 0 {
		t.Fatalf("Reconcile() started a disabled spec: %v", m.Running())
	}
}
