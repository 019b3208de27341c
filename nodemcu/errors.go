package nodemcu

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an operation needs an open session.
	ErrNotConnected = errors.New("nodemcu: not connected")

	// ErrHandshakeTimeout means the device never echoed the confirmation line.
	ErrHandshakeTimeout = errors.New("nodemcu: handshake timed out")

	// ErrUploadStalled matches any *UploadStalledError via errors.Is.
	ErrUploadStalled = errors.New("nodemcu: upload stalled")

	// ErrBufferOverflow is returned by the line assembler when an unterminated
	// line grows past the configured limit.
	ErrBufferOverflow = errors.New("nodemcu: line buffer overflow")

	// ErrNoDevice is returned by ScanFirst when no path validated.
	ErrNoDevice = errors.New("nodemcu: no device found")

	// ErrBusy is returned when a paced transfer is already running on the session.
	ErrBusy = errors.New("nodemcu: transfer already in progress")
)

// ConnectionError wraps a transport failure on a given path.
type ConnectionError struct {
	Path string
	Op   string // open, close, write, flush
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("nodemcu: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UploadStalledError indicates that no prompt arrived after an upload step.
type UploadStalledError struct {
	Step    int
	Command string
	Timeout time.Duration
}

func (e *UploadStalledError) Error() string {
	return fmt.Sprintf("nodemcu: upload stalled at step %d (%q): no prompt within %v",
		e.Step, e.Command, e.Timeout)
}

func (e *UploadStalledError) Is(target error) bool { return target == ErrUploadStalled }
