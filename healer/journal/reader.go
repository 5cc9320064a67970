package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/openhealer/healer/healer"
	"github.com/openhealer/healer/healer/journal/backwardio"
)

// Reader reads entries written by Writer, newest first.
type Reader struct {
	b *backwardio.Scanner
	f *os.File
}

// NewReader creates a Reader over r, which must support seeking.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{b: backwardio.NewScanner(r)}
}

// Read returns the next entry scanning backwards. io.EOF is returned once
// the start of the journal has been consumed.
func (r *Reader) Read() (healer.Event, time.Time, error) {
	var line []byte
	var err error

	for {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	var raw struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode journal entry")
	}

	ev := healer.NewEvent(raw.Type)
	if ev == nil {
		return nil, time.Time{}, fmt.Errorf("unknown journal event type %q", raw.Type)
	}

	if err := json.Unmarshal(raw.Data, ev); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode journal event data")
	}

	return ev, raw.Time, nil
}

// ReadPreviousStateFromFile opens path and scans it backwards to recover
// PreviousState.
func ReadPreviousStateFromFile(path string) (*healer.PreviousState, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &healer.PreviousState{OwnedPIDs: map[string]int{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	return ReadPreviousState(f)
}

// ReadPreviousState scans r backwards to recover PreviousState.
func ReadPreviousState(r io.ReadSeeker) (*healer.PreviousState, error) {
	return healer.ReadPreviousState(NewReader(r))
}
