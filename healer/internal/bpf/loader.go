package bpf

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
)

// ProgramName is the tracepoint handler's symbol, matching the SEC name in
// exitprobe.c.
const ProgramName = "handle_sched_process_exit"

// EventsMapName is the perf event array the kernel side writes into.
const EventsMapName = "events"

// ExitProbe is a loaded and attached exit-tracepoint program with its perf
// ring open for reading. Close releases all three in reverse order.
type ExitProbe struct {
	coll   *ebpf.Collection
	link   link.Link
	Reader *perf.Reader
}

// Load reads the compiled object at objectPath (produced by `go generate`
// from exitprobe.c), loads it into the kernel, attaches it to
// sched:sched_process_exit, and opens its perf event array for reading.
func Load(objectPath string) (*ExitProbe, error) {
	spec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return nil, fmt.Errorf("bpf: load spec %s: %w", objectPath, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("bpf: load collection: %w", err)
	}

	prog := coll.Programs[ProgramName]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("bpf: object has no program %q", ProgramName)
	}

	tp, err := link.Tracepoint("sched", "sched_process_exit", prog, nil)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("bpf: attach tracepoint: %w", err)
	}

	eventsMap := coll.Maps[EventsMapName]
	if eventsMap == nil {
		tp.Close()
		coll.Close()
		return nil, fmt.Errorf("bpf: object has no map %q", EventsMapName)
	}

	rd, err := perf.NewReader(eventsMap, 4096)
	if err != nil {
		tp.Close()
		coll.Close()
		return nil, fmt.Errorf("bpf: open perf reader: %w", err)
	}

	return &ExitProbe{coll: coll, link: tp, Reader: rd}, nil
}

// Close tears the probe down: perf reader, tracepoint link, then collection.
func (p *ExitProbe) Close() error {
	_ = p.Reader.Close()
	_ = p.link.Close()
	p.coll.Close()
	return nil
}
