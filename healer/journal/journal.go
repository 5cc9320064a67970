// Package journal implements healer's Journaler interface to write and read
// an append-only, line-delimited JSON log, plus a file-lock abstraction so
// at most one healer instance runs against a given pid/log directory.
package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/openhealer/healer/healer"
	"github.com/openhealer/healer/healer/journal/backwardio"
)

// multiWriter fans writes out to every wrapped Journaler, returning the
// first error encountered (if any) but always attempting every write.
type multiWriter struct {
	id      string
	writers []healer.Journaler
}

// MultiWriter combines several journalers (e.g. the durable file journal
// and a human-readable stderr stream) behind a single Journaler.
func MultiWriter(ws ...healer.Journaler) healer.Journaler {
	return wrapMultiWriter(ws...)
}

func wrapMultiWriter(ws ...healer.Journaler) *multiWriter {
	var id strings.Builder
	for i, w := range ws {
		id.WriteString(w.ID())
		if i != len(ws)-1 {
			id.WriteByte('+')
		}
	}
	return &multiWriter{id: id.String(), writers: ws}
}

func (w *multiWriter) ID() string { return w.id }

func (w *multiWriter) Write(ev healer.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Entry is the on-disk JSON shape of a journal line.
type Entry struct {
	Time time.Time    `json:"time"`
	Type string       `json:"type"`
	Data healer.Event `json:"data"`
}

// Writer is a Journaler that appends line-delimited JSON entries to w. Write
// is safe for concurrent use as long as the underlying writer's Write is
// atomic for a single call, which is true of *os.File opened with O_APPEND.
type Writer struct {
	id string
	w  *os.File
}

var _ healer.Journaler = Writer{}

func (w Writer) ID() string { return w.id }

func (w Writer) Write(ev healer.Event) error {
	entry := Entry{Time: time.Now(), Type: ev.Type(), Data: ev}

	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal journal entry")
	}
	line = append(line, '\n')

	if _, err := w.w.Write(line); err != nil {
		return errors.Wrap(err, "failed to write journal entry")
	}

	return nil
}

// FileLockJournaler is a Journaler+JournalReader backed by a single file,
// guarded by an flock so only one healer process can hold it open for
// writing at a time.
type FileLockJournaler struct {
	Writer
	*Reader
	f *os.File
	l *flock.Flock
}

// ErrLockedElsewhere is returned when the journal file is already locked by
// another process.
var ErrLockedElsewhere = errors.New("journal file already locked elsewhere")

// NewFileLockJournaler opens (creating if necessary) and locks path.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait is like NewFileLockJournaler but retries the lock
// acquisition until ctx is done.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0640)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal file")
	}

	l := flock.New(path)

	var locked bool
	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to acquire journal lock")
	}
	if !locked {
		f.Close()
		return nil, ErrLockedElsewhere
	}

	reader, err := os.Open(path)
	if err != nil {
		f.Close()
		l.Unlock()
		return nil, errors.Wrap(err, "failed to open journal for reading")
	}

	return &FileLockJournaler{
		Writer: Writer{id: "file:" + path, w: f},
		Reader: &Reader{b: backwardio.NewScanner(reader), f: reader},
		f:      f,
		l:      l,
	}, nil
}

// Close closes the journal file and releases the lock.
func (j *FileLockJournaler) Close() error {
	j.Reader.f.Close()
	j.f.Close()
	return j.l.Unlock()
}
