package healer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Runtime wires together a Bus, a Journaler, a Manager, and a Healer into
// the single running daemon; the SignalDispatcher that drives its reload
// and shutdown is built separately by the caller. It owns nothing that
// isn't handed to it — NewRuntime's caller is responsible for opening the
// journal and building the Spawner, since both have lifetimes (a file
// lock, a log directory) that outlive any one Runtime method call.
type Runtime struct {
	bus     *Bus
	journal Journaler
	reader  JournalReader
	manager *Manager
	healer  *Healer
	log     zerolog.Logger

	configPath string
	previous   *PreviousState
	runDone    chan struct{}
}

// NewRuntime constructs the wiring but starts nothing; call Run then
// Shutdown. journal is the write sink the Healer and Manager record
// decisions to (typically a journal.MultiWriter of the durable file
// journal and a human-readable one); reader is the durable journal's own
// backward reader, used once by Takeover. They are kept separate because
// only the durable file journal can answer "what did we do last time" —
// a human-readable sink has no reader at all.
func NewRuntime(configPath string, journal Journaler, reader JournalReader, spawner Spawner, log zerolog.Logger) *Runtime {
	bus := NewBus(0)
	return &Runtime{
		bus:        bus,
		journal:    journal,
		reader:     reader,
		manager:    NewManager(bus, journal),
		healer:     NewHealer(bus, journal, spawner),
		log:        log,
		configPath: configPath,
		runDone:    make(chan struct{}),
	}
}

// Takeover reads the journal's backward tail to recover which processes
// this daemon believes it owns from a previous run, logging a summary.
// It is purely diagnostic: each monitor independently re-derives current
// liveness (a PID monitor re-reads its PID file, for instance), so a wrong
// or absent previous state never produces incorrect behavior, only a
// less informative startup log line.
func (rt *Runtime) Takeover() error {
	prev, err := ReadPreviousState(rt.reader)
	if err != nil {
		return fmt.Errorf("reading previous state from journal: %w", err)
	}

	rt.previous = prev
	rt.log.Info().Int("owned_processes", len(prev.OwnedPIDs)).Msg("recovered previous run's state from journal")
	for name, pid := range prev.OwnedPIDs {
		rt.log.Debug().Str("process", name).Int("pid", pid).Msg("believed owned from previous run")
	}
	return nil
}

// Previous returns the state recovered by Takeover, or nil if it hasn't
// run (or found nothing).
func (rt *Runtime) Previous() *PreviousState { return rt.previous }

// Load installs specs as the current desired configuration: the Healer's
// spec table is swapped and the Manager is reconciled against it. Errors
// starting individual monitors are logged but not returned, matching the
// propagation policy that no single process' trouble may take down the
// daemon.
func (rt *Runtime) Load(specs []ProcessSpec) {
	rt.healer.SetSpecs(specs)
	for name, err := range rt.manager.Reconcile(specs) {
		rt.log.Error().Str("process", name).Err(err).Msg("failed to start monitor")
	}
}

// Run starts the Healer's event loop and blocks until ctx is cancelled or
// the bus is closed by Shutdown.
func (rt *Runtime) Run(ctx context.Context) error {
	defer close(rt.runDone)
	return rt.healer.Run(ctx)
}

// Shutdown stops all monitors, closes the bus, and waits (bounded by ctx's
// deadline) for Run to observe end-of-stream and return.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.manager.StopAll()
	rt.bus.Close()

	select {
	case <-rt.runDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healer returns the underlying Healer for status queries (breaker state).
func (rt *Runtime) Healer() *Healer { return rt.healer }

// Manager returns the underlying Manager for status queries (running monitors).
func (rt *Runtime) Manager() *Manager { return rt.manager }
