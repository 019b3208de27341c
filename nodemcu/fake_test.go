package nodemcu

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var errPortClosed = errors.New("port closed")

// fakePort simulates a serial port. Chunks passed to inject are returned by
// Read one at a time; onWrite lets a test play the device.
type fakePort struct {
	rx        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	events   []string
	written  []string
	writeErr error
	onWrite  func(p *fakePort, data string)
}

func newFakePort() *fakePort {
	return &fakePort{rx: make(chan []byte, 64), done: make(chan struct{})}
}

func (p *fakePort) inject(s string) {
	select {
	case p.rx <- []byte(s):
	case <-p.done:
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(b, chunk), nil
	case <-p.done:
		return 0, errPortClosed
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	p.events = append(p.events, "write:"+string(b))
	p.written = append(p.written, string(b))
	hook := p.onWrite
	p.mu.Unlock()

	if hook != nil {
		hook(p, string(b))
	}
	return len(b), nil
}

func (p *fakePort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "drain")
	return nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakePort) writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func (p *fakePort) eventLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// fakeTransport hands out a fresh port per Open, built by newPort.
type fakeTransport struct {
	paths   []string
	listErr error
	newPort func(path string) (*fakePort, error)

	mu    sync.Mutex
	opens map[string][]*fakePort
	bauds []int
}

func newFakeTransport(paths ...string) *fakeTransport {
	return &fakeTransport{
		paths:   paths,
		newPort: func(string) (*fakePort, error) { return newFakePort(), nil },
		opens:   make(map[string][]*fakePort),
	}
}

func (t *fakeTransport) Ports() ([]string, error) {
	return t.paths, t.listErr
}

func (t *fakeTransport) Open(path string, baudRate int) (Port, error) {
	p, err := t.newPort(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.opens[path] = append(t.opens[path], p)
	t.bauds = append(t.bauds, baudRate)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) lastPort(path string) *fakePort {
	t.mu.Lock()
	defer t.mu.Unlock()
	ports := t.opens[path]
	if len(ports) == 0 {
		return nil
	}
	return ports[len(ports)-1]
}

// promptingDevice answers every write with the interpreter prompt.
func promptingDevice(p *fakePort, data string) {
	p.inject(strings.TrimSuffix(data, "\n") + "\r\n")
	p.inject("> ")
}

// nodeMCUDevice answers the probe like real firmware; everything else gets a prompt.
func nodeMCUDevice(p *fakePort, data string) {
	if data == ProbeCommand {
		p.inject(strings.TrimSuffix(data, "\n") + "\r\n")
		p.inject(ConfirmationMarker + "\r\n")
		p.inject("> ")
		return
	}
	promptingDevice(p, data)
}

type recordingConsole struct {
	mu    sync.Mutex
	lines []string
	raw   strings.Builder
}

func (c *recordingConsole) WriteLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *recordingConsole) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.WriteString(text)
}

func (c *recordingConsole) has(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if l == text {
			return true
		}
	}
	return false
}

func (c *recordingConsole) rawText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw.String()
}

func waitFor(cond func() bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
