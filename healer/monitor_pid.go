package healer

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openhealer/healer/healer/internal/exec"
)

// pidMonitor polls a PID file on a fixed interval and checks liveness with
// the classic kill(pid, 0) probe. An absent observation must persist across
// one full poll interval before it is published, so a supervisee atomically
// rewriting its own PID file (momentarily absent) doesn't trip a spurious
// recovery. Once published, it debounces further: it stays quiet until the
// process is observed alive again, so a process sitting dead for ten poll
// cycles produces exactly one event, not ten.
type pidMonitor struct {
	name string
	spec PidMonitorSpec
	bus  *Bus
}

var _ Monitor = (*pidMonitor)(nil)

func (m *pidMonitor) Run(ctx context.Context) error {
	interval := m.spec.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasDown := false
	pendingAbsent := false
	lastPID := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		alive, pid := m.probe()
		if alive {
			wasDown = false
			pendingAbsent = false
			lastPID = pid
			continue
		}

		if pid == 0 {
			pid = lastPID
		}

		if wasDown {
			continue
		}

		if !pendingAbsent {
			pendingAbsent = true
			continue
		}

		wasDown = true
		pendingAbsent = false
		m.bus.Publish(NewProcessDown(m.name, pid))
	}
}

// probe reads the PID file and checks whether the PID it names is alive. A
// missing or unparsable PID file counts as not alive, with pid 0 — callers
// fall back to the last PID observed alive, since a ProcessDown event
// should name the process that went away, not an empty file.
func (m *pidMonitor) probe() (alive bool, pid int) {
	raw, err := os.ReadFile(m.spec.PIDFilePath)
	if err != nil {
		return false, 0
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return false, 0
	}

	pid, err = strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return false, 0
	}

	ok, err := exec.SignalZero(pid)
	if err != nil {
		return false, pid
	}
	return ok, pid
}
