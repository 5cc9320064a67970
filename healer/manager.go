package healer

import "sync"

// Manager owns the set of running Monitors and reconciles it against a
// desired set of ProcessSpec on every load and every hot reload. It never
// restarts a monitor whose spec hasn't actually changed: Reconcile is
// idempotent, driven entirely by each spec's Fingerprint.
type Manager struct {
	bus     *Bus
	journal Journaler

	mu      sync.Mutex
	running map[string]*Handle
}

// NewManager creates a Manager with no running monitors. journal may be
// nil, in which case monitor start/stop events are simply not recorded.
func NewManager(bus *Bus, journal Journaler) *Manager {
	return &Manager{
		bus:     bus,
		journal: journal,
		running: make(map[string]*Handle),
	}
}

// Reconcile brings the running set of monitors in line with specs: starts
// monitors for new or changed specs, stops monitors for specs that
// disappeared, and leaves everything else untouched. It returns the names
// that failed to start, paired with their error, so the caller can decide
// whether that's fatal (it generally is not — a broken monitor for one
// process shouldn't stop the daemon supervising the rest).
func (m *Manager) Reconcile(specs []ProcessSpec) map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desired := make(map[string]ProcessSpec, len(specs))
	for _, s := range specs {
		if s.Enabled {
			desired[s.Name] = s
		}
	}

	errs := make(map[string]error)

	for name, handle := range m.running {
		spec, stillDesired := desired[name]
		if !stillDesired || spec.Monitor.Fingerprint() != handle.Fingerprint {
			handle.Stop()
			delete(m.running, name)
		}
	}

	for name, spec := range desired {
		if _, alreadyRunning := m.running[name]; alreadyRunning {
			continue
		}

		mon, err := newMonitor(spec, m.bus)
		if err != nil {
			errs[name] = err
			continue
		}

		m.running[name] = startMonitor(name, spec.Monitor.Fingerprint(), spec.Monitor.Kind(), mon, m.journal)
	}

	return errs
}

// StopAll stops every running monitor, used during graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.running))
	for name, h := range m.running {
		handles = append(handles, h)
		delete(m.running, name)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Running returns the names of currently running monitors, for status
// reporting and tests.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	return names
}
