package nodemcu

import "strings"

// LineAssembler turns raw receive chunks into lines.
//
// A line is only emitted when a chunk ends in '\n'; newlines inside a chunk are
// kept in the text. Carriage returns are not stripped.
type LineAssembler struct {
	buf strings.Builder
	max int
}

// NewLineAssembler returns an assembler that fails with ErrBufferOverflow once
// a line grows past max bytes, not counting its terminating '\n'. max <= 0
// means unbounded.
func NewLineAssembler(max int) *LineAssembler {
	return &LineAssembler{max: max}
}

// Feed appends chunk and returns the completed line, if any.
func (a *LineAssembler) Feed(chunk []byte) (string, bool, error) {
	if len(chunk) == 0 {
		return "", false, nil
	}
	terminated := chunk[len(chunk)-1] == '\n'
	if a.max > 0 {
		size := a.buf.Len() + len(chunk)
		if terminated {
			size--
		}
		if size > a.max {
			a.buf.Reset()
			return "", false, ErrBufferOverflow
		}
	}

	a.buf.WriteString(BytesToString(chunk))
	if !terminated {
		return "", false, nil
	}

	s := a.buf.String()
	a.buf.Reset()
	return s[:len(s)-1], true, nil
}

// Pending returns the unterminated text received so far.
func (a *LineAssembler) Pending() string { return a.buf.String() }

// Reset drops any pending text.
func (a *LineAssembler) Reset() { a.buf.Reset() }
