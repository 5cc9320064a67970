package healer

import (
	"errors"
	"io"
	"time"
)

// Journaler describes an event logger. Every component that makes a
// decision worth remembering — the healer receiving a monitor's event or
// flipping a breaker, the manager starting or stopping a monitor — writes
// into a Journaler. It is a sink, not a bus: there is no subscription model,
// only Write.
type Journaler interface {
	// ID identifies the journaler, primarily for diagnostics when several
	// are combined with MultiWriter.
	ID() string
	Write(Event) error
}

// JournalReader reads previously written entries back, oldest-last (i.e.
// newest first), since recovery only ever cares about the most recent facts.
type JournalReader interface {
	// Read returns the next entry scanning backwards, and the time it was
	// written. io.EOF is returned once the start of the journal is reached.
	Read() (Event, time.Time, error)
}

// JournalReadWriter combines both roles, e.g. the daemon's own lockable
// journal file.
type JournalReadWriter interface {
	Journaler
	JournalReader
}

// PreviousState is what the daemon recovers from its own journal on
// startup: the set of processes it believes it spawned in a previous run
// that it never saw exit. See Runtime's startup takeover logic.
type PreviousState struct {
	// OwnedPIDs maps a supervised process name to the last PID the daemon
	// spawned for it, for every name whose last known transition was a
	// spawn rather than an exit.
	OwnedPIDs map[string]int
}

// ReadPreviousState scans r backwards until it has resolved, for every
// process name it encounters, whether the most recent fact about it was a
// spawn (then it's a candidate takeover) or an exit/spawn-error (then it's
// not). It stops once it hits io.EOF or once it has seen enough entries to
// be confident it won't learn anything new — in practice that means reading
// to the start, since the journal has no per-name index.
func ReadPreviousState(r JournalReader) (*PreviousState, error) {
	resolved := make(map[string]bool)
	owned := make(map[string]int)

	for {
		ev, _, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch e := ev.(type) {
		case *EventProcessSpawned:
			if !resolved[e.Name] {
				resolved[e.Name] = true
				owned[e.Name] = e.PID
			}
		case *EventProcessSpawnError:
			if !resolved[e.Name] {
				resolved[e.Name] = true
			}
		case *EventProcessDown:
			if !resolved[e.Name] {
				resolved[e.Name] = true
			}
		}
	}

	return &PreviousState{OwnedPIDs: owned}, nil
}
