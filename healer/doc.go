// Package healer is the core of the healer daemon: a monitor-healer event
// pipeline, a per-process circuit breaker, and a reconciling supervisor,
// built to work independently while communicating over channels.
//
// Mechanism of Operation
//
// Liveness Signals
//
// Three monitor variants publish the same ProcessEvent union onto a single
// broadcast Bus: a PID monitor polls a pidfile and signals it with signal 0,
// a network monitor probes a TCP or HTTP endpoint, and an eBPF monitor
// attaches to the kernel's sched_process_exit tracepoint and filters exit
// records by comm in userspace. The Healer is the bus's sole subscriber; it
// owns a per-process circuit breaker and is the only thing allowed to spawn
// recovery commands.
//
// Journal
//
// Independently of the bus, the Healer and the Manager write structured
// lifecycle events into an append-only journal file. The journal is never replayed
// onto the bus — it exists purely for audit and for the one piece of state
// recovered across restarts: on startup, the daemon scans the journal
// backwards to find PIDs it spawned that it never saw exit, so it does not
// mistake its own restart for the supervisee's death.
package healer
