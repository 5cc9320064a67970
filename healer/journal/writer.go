package journal

import (
	"fmt"
	"io"
	"time"

	"github.com/openhealer/healer/healer"
)

// humanWriter formats journal entries as a single human-readable line per
// event, for attaching to stderr or the structured logger's sink alongside
// the durable file journal.
type humanWriter struct {
	id string
	w  io.Writer
}

var _ healer.Journaler = humanWriter{}

// NewHumanWriter wraps w, tagging it with id for diagnostics in
// MultiWriter's combined ID.
func NewHumanWriter(id string, w io.Writer) healer.Journaler {
	return humanWriter{id: id, w: w}
}

func (h humanWriter) ID() string { return h.id }

func (h humanWriter) Write(ev healer.Event) error {
	_, err := fmt.Fprintf(h.w, "%s %-20s %+v\n", time.Now().Format(time.RFC3339), ev.Type(), ev)
	return err
}
