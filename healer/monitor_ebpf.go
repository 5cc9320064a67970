package healer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf/perf"

	"github.com/openhealer/healer/healer/internal/bpf"
)

// DefaultExitProbeObjectPath is where the compiled tracepoint object is
// expected to live; it is used unless an ebpfMonitor's objectPath is set.
// Each eBPF monitor loads and attaches its own copy of the probe from this
// path, and since the kernel side does no comm filtering, every copy sees
// every exit.
const DefaultExitProbeObjectPath = "/usr/lib/healer/bpf/exitprobe.o"

// exitEvent mirrors struct exit_event in exitprobe.c byte for byte.
type exitEvent struct {
	PID  uint32
	Comm [16]byte
}

// ebpfMonitor watches the kernel's sched_process_exit tracepoint for a
// specific comm prefix. Setup failure (old kernel, missing capability,
// object not built) is reported as an error from Run and is fatal only to
// this monitor: the Manager logs it and leaves the other monitors running.
type ebpfMonitor struct {
	name string
	spec EbpfMonitorSpec
	bus  *Bus

	objectPath string // overridable by tests
}

var _ Monitor = (*ebpfMonitor)(nil)

func (m *ebpfMonitor) Run(ctx context.Context) error {
	path := m.objectPath
	if path == "" {
		path = DefaultExitProbeObjectPath
	}

	probe, err := bpf.Load(path)
	if err != nil {
		return fmt.Errorf("ebpf monitor %q: %w", m.name, err)
	}
	defer probe.Close()

	want := []byte(truncateComm(m.spec.ProcessName))

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		probe.Reader.Close() // unblocks the Read loop below
		close(done)
	}()

	for {
		record, err := probe.Reader.Read()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if err == perf.ErrClosed {
				return nil
			}
			return fmt.Errorf("ebpf monitor %q: read perf ring: %w", m.name, err)
		}

		if record.LostSamples > 0 {
			// The kernel dropped samples under load; we can't know whether
			// one of them was our process, so there's nothing useful to do
			// beyond continuing to drain the ring.
			continue
		}

		var ev exitEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			continue
		}

		comm := bytes.TrimRight(ev.Comm[:], "\x00")
		if !bytes.Equal(comm, want) {
			continue
		}

		m.bus.Publish(NewProcessDown(m.name, int(ev.PID)))
	}
}
