// Package backwardio implements a buffered reader that scans a seekable
// stream from its tail towards its head, one delimited token at a time.
//
// The journal is an append-only, line-delimited log: new entries are always
// the last bytes in the file. Recovering "what did I last do" therefore
// means reading backwards without loading the whole file, which is what
// Scanner and BackwardsReader provide.
package backwardio

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

var maxTok = bufio.MaxScanTokenSize

// BackwardsReader reads a seekable stream back to front, token by token.
type BackwardsReader struct {
	r   io.ReadSeeker
	buf []byte
	end int64 // offset of the last seek, bounds how much is left to read
}

// NewBackwardsReader wraps r for backwards reading.
func NewBackwardsReader(r io.ReadSeeker) *BackwardsReader {
	return &BackwardsReader{r: r}
}

// ReadUntil returns the next token found scanning backwards up to and
// excluding delim. io.EOF is returned once the start of the stream has been
// consumed.
func (r *BackwardsReader) ReadUntil(delim byte) ([]byte, error) {
	for {
		if r.buf == nil {
			goto fill
		}

		for i := len(r.buf) - 1; i >= 0; i-- {
			atStart := i == 0 && r.end == 0

			if r.buf[i] != delim && !atStart {
				continue
			}

			tok := r.buf[i:]
			r.buf = r.buf[:i]

			if len(tok) > 0 && tok[0] == delim {
				tok = tok[1:]

				if atStart && len(tok) > 0 {
					r.buf = r.buf[:1]
				}
			}

			return tok, nil
		}

		if len(r.buf) == cap(r.buf) {
			// Scanned the whole buffer without finding delim and it's already
			// at capacity; growing further won't help.
			return nil, bufio.ErrTooLong
		}

	fill:
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

func (r *BackwardsReader) fill() error {
	if r.buf == nil {
		end, err := r.r.Seek(0, io.SeekEnd)
		if err != nil {
			return errors.Wrap(err, "failed to find end of file")
		}

		r.end = end
		r.buf = make([]byte, 0, maxTok)
	}

	if r.end == 0 {
		return io.EOF
	}

	limit := int64(cap(r.buf))

	if len(r.buf) > 0 {
		limit -= int64(len(r.buf))
		r.buf = r.buf[:cap(r.buf)]
		copy(r.buf[limit:], r.buf)
	}

	seekTo := r.end - limit
	lo := int64(0)

	if seekTo < 0 {
		seekTo = 0
		lo = limit - r.end
	}

	if _, err := r.r.Seek(seekTo, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek backwards")
	}

	r.end = seekTo

	if _, err := r.r.Read(r.buf[lo:limit]); err != nil {
		return errors.Wrap(err, "failed to read seeked chunk")
	}

	r.buf = r.buf[lo:cap(r.buf)]

	return nil
}

// Scanner is a line-oriented facade over BackwardsReader, matching the shape
// journal.Reader expects: repeated ReadUntil('\n') calls walking newest to
// oldest.
type Scanner struct {
	r *BackwardsReader
}

// NewScanner creates a Scanner reading backwards from the current end of r.
func NewScanner(r io.ReadSeeker) *Scanner {
	return &Scanner{r: NewBackwardsReader(r)}
}

// ReadUntil delegates to the underlying BackwardsReader.
func (s *Scanner) ReadUntil(delim byte) ([]byte, error) {
	return s.r.ReadUntil(delim)
}
