package nodemcu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Line is one newline-terminated run received from a session.
type Line struct {
	Session *Session
	Text    string
}

// LineListener is called on the session's reader goroutine, in arrival order.
// It must not block and must not call Disconnect.
type LineListener func(Line)

type listenerEntry struct {
	fn      LineListener
	removed atomic.Bool
}

// Session is the binding between the driver and one open port.
//
// A single reader goroutine runs for the lifetime of the connection and
// dispatches every raw chunk to the console echo, the line assembler, the
// prompt detector (while a paced transfer waits) and the line listeners.
type Session struct {
	transport Transport
	path      string
	console   Console
	config    Config

	mu         sync.Mutex // guards port, closed, readerDone
	port       Port
	closed     chan struct{}
	readerDone chan struct{}

	sendMu sync.Mutex

	// dispatchMu is held while a chunk is dispatched, so Disconnect can
	// guarantee no listener runs after it returns.
	dispatchMu sync.Mutex
	assembler  *LineAssembler
	promptWait chan struct{}

	lmu       sync.Mutex
	listeners []*listenerEntry
}

// NewSession prepares a session for path. Nothing is opened until Connect.
func NewSession(transport Transport, path string, console Console, opts ...Option) *Session {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if console == nil {
		console = DiscardConsole
	}
	cfg := buildConfig(opts)
	return &Session{
		transport: transport,
		path:      path,
		console:   consoleFor(console, path),
		config:    cfg,
		assembler: NewLineAssembler(cfg.MaxLineLength),
	}
}

// Path returns the device path of the session.
func (s *Session) Path() string { return s.path }

// IsConnected reports whether the port is open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Connect opens the port and starts the reader.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return &ConnectionError{Path: s.path, Op: "open", Err: errors.New("already connected")}
	}

	s.console.WriteLine("Connecting to device on " + s.path)
	port, err := s.transport.Open(s.path, s.config.BaudRate)
	if err != nil {
		return &ConnectionError{Path: s.path, Op: "open", Err: err}
	}

	s.dispatchMu.Lock()
	s.assembler.Reset()
	s.promptWait = nil
	s.dispatchMu.Unlock()

	s.port = port
	s.closed = make(chan struct{})
	s.readerDone = make(chan struct{})
	go s.readLoop(port, s.closed, s.readerDone)
	return nil
}

// Disconnect removes all listeners, closes the port and waits for the reader
// to exit. It returns ErrNotConnected if the session is not open.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	port := s.port
	if port == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.port = nil
	closed, done := s.closed, s.readerDone
	s.mu.Unlock()

	s.console.WriteLine("Disconnecting")

	s.dispatchMu.Lock()
	close(closed)
	s.lmu.Lock()
	for _, l := range s.listeners {
		l.removed.Store(true)
	}
	s.listeners = nil
	s.lmu.Unlock()
	s.promptWait = nil
	s.assembler.Reset()
	s.dispatchMu.Unlock()

	err := port.Close()
	<-done
	if err != nil {
		return &ConnectionError{Path: s.path, Op: "close", Err: err}
	}
	return nil
}

// SendData writes data and returns once the port has been drained. Calls are
// serialized so one send never starts before the previous flush completed.
func (s *Session) SendData(data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	if _, err := port.Write(data); err != nil {
		return &ConnectionError{Path: s.path, Op: "write", Err: err}
	}
	if err := port.Drain(); err != nil {
		return &ConnectionError{Path: s.path, Op: "flush", Err: err}
	}
	return nil
}

// AddLineListener registers fn for every line received from now on. The
// returned func unregisters it and may be called more than once.
func (s *Session) AddLineListener(fn LineListener) (remove func()) {
	entry := &listenerEntry{fn: fn}

	s.lmu.Lock()
	s.listeners = append(s.listeners, entry)
	s.lmu.Unlock()

	return func() {
		if entry.removed.Swap(true) {
			return
		}
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, l := range s.listeners {
			if l == entry {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				break
			}
		}
	}
}

func (s *Session) readLoop(port Port, closed <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			s.dispatch(closed, buf[:n])
		}
		if err != nil {
			select {
			case <-closed:
			default:
				s.console.WriteLine(fmt.Sprintf("Read error on %s: %v", s.path, err))
			}
			return
		}
	}
}

func (s *Session) dispatch(closed <-chan struct{}, chunk []byte) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	select {
	case <-closed:
		return
	default:
	}

	text := BytesToString(chunk)
	s.console.Write(text)

	if s.promptWait != nil && IsPromptChunk(text) {
		select {
		case s.promptWait <- struct{}{}:
		default:
		}
	}

	line, ok, err := s.assembler.Feed(chunk)
	if err != nil {
		s.console.WriteLine(fmt.Sprintf("Discarding input on %s: %v", s.path, err))
		return
	}
	if !ok {
		return
	}

	s.lmu.Lock()
	listeners := append([]*listenerEntry(nil), s.listeners...)
	s.lmu.Unlock()

	ev := Line{Session: s, Text: line}
	for _, l := range listeners {
		if !l.removed.Load() {
			l.fn(ev)
		}
	}
}
