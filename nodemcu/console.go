package nodemcu

import (
	"io"
	"log"
	"strings"
	"sync"
)

// Console receives human-readable progress and the raw device echo.
// Implementations must tolerate concurrent calls from several sessions.
type Console interface {
	WriteLine(text string)
	Write(text string)
}

// SourceConsole is a Console that keeps per-device state for raw output.
// NewSession hands each session its own console from ForSource, so chunks
// from concurrently open ports never share a partial line.
type SourceConsole interface {
	Console
	ForSource(path string) Console
}

func consoleFor(c Console, path string) Console {
	if sc, ok := c.(SourceConsole); ok {
		return sc.ForSource(path)
	}
	return c
}

// LogConsole writes to a *log.Logger. Raw device output is buffered until a
// newline so that each log entry carries one line.
type LogConsole struct {
	logger *log.Logger
	prefix string

	mu      sync.Mutex
	partial strings.Builder
}

// NewLogConsole returns a Console logging through logger. Device output is
// prefixed with rxPrefix (e.g. "RX: ").
func NewLogConsole(logger *log.Logger, rxPrefix string) *LogConsole {
	if logger == nil {
		logger = log.Default()
	}
	return &LogConsole{logger: logger, prefix: rxPrefix}
}

// ForSource returns a console for one device path. It shares the logger and
// tags raw lines with the path.
func (c *LogConsole) ForSource(path string) Console {
	return &LogConsole{logger: c.logger, prefix: "[" + path + "] " + c.prefix}
}

func (c *LogConsole) WriteLine(text string) {
	c.logger.Println(text)
}

func (c *LogConsole) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.partial.WriteString(text)
	buffered := c.partial.String()
	idx := strings.LastIndexByte(buffered, '\n')
	if idx < 0 {
		return
	}
	c.partial.Reset()
	c.partial.WriteString(buffered[idx+1:])
	for _, line := range strings.Split(buffered[:idx], "\n") {
		c.logger.Printf("%s%s", c.prefix, strings.TrimRight(line, "\r"))
	}
}

// WriterConsole appends everything to an io.Writer.
type WriterConsole struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterConsole(w io.Writer) *WriterConsole {
	return &WriterConsole{w: w}
}

func (c *WriterConsole) WriteLine(text string) {
	c.Write(text + "\n")
}

func (c *WriterConsole) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, text)
}

// MultiConsole fans out to several consoles.
type MultiConsole []Console

// ForSource forks every member that keeps per-device state.
func (m MultiConsole) ForSource(path string) Console {
	forked := make(MultiConsole, len(m))
	for i, c := range m {
		forked[i] = consoleFor(c, path)
	}
	return forked
}

func (m MultiConsole) WriteLine(text string) {
	for _, c := range m {
		c.WriteLine(text)
	}
}

func (m MultiConsole) Write(text string) {
	for _, c := range m {
		c.Write(text)
	}
}

// DiscardConsole drops everything.
var DiscardConsole Console = discardConsole{}

type discardConsole struct{}

func (discardConsole) WriteLine(string) {}
func (discardConsole) Write(string)     {}
