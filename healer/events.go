package healer

// EventKind discriminates the variants of ProcessEvent carried on the Bus.
type EventKind string

const (
	// ProcessDown is published by the PID or eBPF monitor when a supervisee
	// has exited.
	ProcessDown EventKind = "process_down"
	// ProcessDisconnected is published by the network monitor when a probe
	// fails to reach its target.
	ProcessDisconnected EventKind = "process_disconnected"
)

// ProcessEvent is the tagged union carried on the Bus. Only the fields
// relevant to Kind are meaningful; this mirrors a Rust-style enum using a
// discriminator field instead of a variant type switch, since channels need
// one concrete element type.
type ProcessEvent struct {
	Kind EventKind
	Name string

	// PID is set for ProcessDown.
	PID int
	// URL is set for ProcessDisconnected.
	URL string
}

// NewProcessDown builds a ProcessDown event.
func NewProcessDown(name string, pid int) ProcessEvent {
	return ProcessEvent{Kind: ProcessDown, Name: name, PID: pid}
}

// NewProcessDisconnected builds a ProcessDisconnected event.
func NewProcessDisconnected(name, url string) ProcessEvent {
	return ProcessEvent{Kind: ProcessDisconnected, Name: name, URL: url}
}

// journal event types.
//
// These are distinct from ProcessEvent: ProcessEvent is the live bus
// payload; the types below are what gets durably appended to the journal
// whenever the healer or the manager makes a decision worth remembering,
// and for every monitor event the healer receives from the bus. They follow the teacher's Event/NewEvent registry pattern so
// the journal reader can decode a heterogeneous stream by its "type" tag.
type journalEventType = string

const (
	typeProcessDown         journalEventType = "process_down"
	typeProcessDisconnected journalEventType = "process_disconnected"
	typeProcessSpawned      journalEventType = "process_spawned"
	typeProcessSpawnError   journalEventType = "process_spawn_error"
	typeCircuitOpened       journalEventType = "circuit_opened"
	typeCircuitClosed       journalEventType = "circuit_closed"
	typeCircuitRejected     journalEventType = "circuit_rejected"
	typeMonitorStarted      journalEventType = "monitor_started"
	typeMonitorStopped      journalEventType = "monitor_stopped"
	typeWarning             journalEventType = "warning"
)

// Event is a journal entry payload. Every concrete type below implements it.
type Event interface {
	Type() string
	event()
}

// NewEvent constructs a zero-value Event for the given type tag, used by the
// journal reader to decode entries without knowing their type up front. Nil
// is returned for unknown tags.
func NewEvent(t string) Event {
	switch t {
	case typeProcessDown:
		return &EventProcessDown{}
	case typeProcessDisconnected:
		return &EventProcessDisconnected{}
	case typeProcessSpawned:
		return &EventProcessSpawned{}
	case typeProcessSpawnError:
		return &EventProcessSpawnError{}
	case typeCircuitOpened:
		return &EventCircuitOpened{}
	case typeCircuitClosed:
		return &EventCircuitClosed{}
	case typeCircuitRejected:
		return &EventCircuitRejected{}
	case typeMonitorStarted:
		return &EventMonitorStarted{}
	case typeMonitorStopped:
		return &EventMonitorStopped{}
	case typeWarning:
		return &EventWarning{}
	default:
		return nil
	}
}

// EventProcessDown mirrors a ProcessDown ProcessEvent for the journal.
type EventProcessDown struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

func (*EventProcessDown) Type() string { return typeProcessDown }
func (*EventProcessDown) event()       {}

// EventProcessDisconnected mirrors a ProcessDisconnected ProcessEvent.
type EventProcessDisconnected struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (*EventProcessDisconnected) Type() string { return typeProcessDisconnected }
func (*EventProcessDisconnected) event()       {}

// EventProcessSpawned is emitted after a successful recovery spawn.
type EventProcessSpawned struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
}

func (*EventProcessSpawned) Type() string { return typeProcessSpawned }
func (*EventProcessSpawned) event()       {}

// EventProcessSpawnError is emitted when a recovery spawn fails.
type EventProcessSpawnError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (*EventProcessSpawnError) Type() string { return typeProcessSpawnError }
func (*EventProcessSpawnError) event()       {}

// EventCircuitOpened is emitted when a breaker transitions Closed/HalfOpen -> Open.
type EventCircuitOpened struct {
	Name            string `json:"name"`
	CooldownSeconds uint32 `json:"cooldown_secs"`
}

func (*EventCircuitOpened) Type() string { return typeCircuitOpened }
func (*EventCircuitOpened) event()       {}

// EventCircuitClosed is emitted when a breaker transitions HalfOpen -> Closed.
type EventCircuitClosed struct {
	Name string `json:"name"`
}

func (*EventCircuitClosed) Type() string { return typeCircuitClosed }
func (*EventCircuitClosed) event()       {}

// EventCircuitRejected is emitted once per event dropped while a breaker is Open.
type EventCircuitRejected struct {
	Name string `json:"name"`
}

func (*EventCircuitRejected) Type() string { return typeCircuitRejected }
func (*EventCircuitRejected) event()       {}

// EventMonitorStarted is emitted by the manager after spawning a monitor task.
type EventMonitorStarted struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (*EventMonitorStarted) Type() string { return typeMonitorStarted }
func (*EventMonitorStarted) event()       {}

// EventMonitorStopped is emitted by the manager after a monitor task is joined.
type EventMonitorStopped struct {
	Name string `json:"name"`
}

func (*EventMonitorStopped) Type() string { return typeMonitorStopped }
func (*EventMonitorStopped) event()       {}

// EventWarning is emitted for any non-fatal error worth remembering.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (*EventWarning) Type() string { return typeWarning }
func (*EventWarning) event()       {}
