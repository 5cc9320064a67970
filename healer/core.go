package healer

import (
	"context"
	"sync"
	"time"
)

// Spawner executes a recovery command for spec and reports the PID it was
// given. It is the one seam between the Healer's bookkeeping (breakers,
// coalescing, journaling) and the actual os/exec call, so tests can swap in
// a Spawner that never forks a real process.
type Spawner interface {
	Spawn(spec ProcessSpec) (pid int, err error)
}

// Healer is the sole subscriber of a Bus: for every ProcessEvent it
// consults that process' circuit breaker, and if admitted, runs a recovery
// spawn. Concurrent events for the same process while a recovery is already
// running are coalesced into a no-op rather than queued or spawned again.
type Healer struct {
	bus     *Bus
	recv    *Receiver
	journal Journaler
	spawner Spawner

	mu       sync.Mutex
	specs    map[string]ProcessSpec
	breakers map[string]*Breaker
	inFlight map[string]bool
}

// NewHealer creates a Healer with no specs loaded; call SetSpecs before
// Run, and again on every config reload. It subscribes to bus immediately,
// so every event published after NewHealer returns is seen by Run.
func NewHealer(bus *Bus, journal Journaler, spawner Spawner) *Healer {
	return &Healer{
		bus:      bus,
		recv:     bus.Subscribe(),
		journal:  journal,
		spawner:  spawner,
		specs:    make(map[string]ProcessSpec),
		breakers: make(map[string]*Breaker),
		inFlight: make(map[string]bool),
	}
}

// SetSpecs installs the current desired set of ProcessSpec, keyed by name.
// Breakers for names no longer present are dropped — a hot reload that
// removes or renames a process also resets its failure history, since
// there is no longer anything for that history to describe.
func (h *Healer) SetSpecs(specs []ProcessSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make(map[string]ProcessSpec, len(specs))
	for _, s := range specs {
		next[s.Name] = s
	}
	h.specs = next

	for name := range h.breakers {
		if _, ok := next[name]; !ok {
			delete(h.breakers, name)
			delete(h.inFlight, name)
		}
	}
}

// Run consumes events from the Bus until ctx is cancelled. Each event is
// handled synchronously up through the admit decision; the actual spawn
// runs in its own goroutine so a slow recovery for one process never delays
// the Healer noticing trouble in another.
func (h *Healer) Run(ctx context.Context) error {
	recv := h.recv
	defer recv.Close()

	done := ctx.Done()
	for {
		ev, err, ok := recv.Recv(done)
		if !ok {
			return nil
		}
		if err != nil {
			if _, lagged := err.(Lagged); lagged {
				continue
			}
			return err
		}

		h.handle(ev)
	}
}

func (h *Healer) handle(ev ProcessEvent) {
	switch ev.Kind {
	case ProcessDown:
		h.write(&EventProcessDown{Name: ev.Name, PID: ev.PID})
	case ProcessDisconnected:
		h.write(&EventProcessDisconnected{Name: ev.Name, URL: ev.URL})
	}

	h.mu.Lock()
	spec, known := h.specs[ev.Name]
	if !known || h.inFlight[ev.Name] {
		h.mu.Unlock()
		return
	}

	breaker := h.breakers[ev.Name]
	if breaker == nil {
		breaker = NewBreaker()
		h.breakers[ev.Name] = breaker
	}

	now := time.Now()
	allow, probing, opened := breaker.Admit(now, spec.Recovery)
	if !allow {
		h.mu.Unlock()
		if opened {
			h.write(&EventCircuitOpened{
				Name:            ev.Name,
				CooldownSeconds: uint32(spec.Recovery.Cooldown / time.Second),
			})
		}
		h.write(&EventCircuitRejected{Name: ev.Name})
		return
	}

	h.inFlight[ev.Name] = true
	h.mu.Unlock()

	go h.recover(spec, breaker, probing)
}

func (h *Healer) recover(spec ProcessSpec, breaker *Breaker, _ bool) {
	defer func() {
		h.mu.Lock()
		delete(h.inFlight, spec.Name)
		h.mu.Unlock()
	}()

	pid, err := h.spawner.Spawn(spec)
	now := time.Now()

	if err != nil {
		h.mu.Lock()
		opened := breaker.RecordFailure(now, spec.Recovery)
		h.mu.Unlock()

		h.write(&EventProcessSpawnError{Name: spec.Name, Error: err.Error()})
		if opened {
			h.write(&EventCircuitOpened{
				Name:            spec.Name,
				CooldownSeconds: uint32(spec.Recovery.Cooldown / time.Second),
			})
		}
		return
	}

	h.mu.Lock()
	closed := breaker.RecordSuccess()
	h.mu.Unlock()

	h.write(&EventProcessSpawned{Name: spec.Name, PID: pid})
	if closed {
		h.write(&EventCircuitClosed{Name: spec.Name})
	}
}

func (h *Healer) write(ev Event) {
	if h.journal == nil {
		return
	}
	_ = h.journal.Write(ev)
}

// BreakerOpen reports whether name's breaker is currently open, for status
// reporting and tests. Unknown names report false.
func (h *Healer) BreakerOpen(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.breakers[name]
	if !ok {
		return false
	}
	return b.IsOpen(time.Now())
}
