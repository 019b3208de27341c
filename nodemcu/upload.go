package nodemcu

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

type promptWaiter struct {
	ch     chan struct{}
	closed <-chan struct{}
	lost   <-chan struct{}
}

// SendMultiline sends data one line at a time, waiting for the interpreter
// prompt after each line. It returns once the prompt following the last line
// has been seen.
func (s *Session) SendMultiline(ctx context.Context, data string) error {
	lines := strings.Split(data, "\n")
	cmds := make([]string, len(lines))
	for i, line := range lines {
		cmds[i] = line + "\n"
	}
	return s.sendPaced(ctx, cmds)
}

// SendAsFile stores data on the device under filename: one open, one write
// per line, one close, each paced by the prompt.
func (s *Session) SendAsFile(ctx context.Context, data, filename string) error {
	cmds := EncodeFile(data, filename)
	s.console.WriteLine(fmt.Sprintf("Uploading %s (%d lines)", filename, len(cmds)-2))
	if err := s.sendPaced(ctx, cmds); err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	s.console.WriteLine("Upload of " + filename + " complete")
	return nil
}

// EncodeFile returns the Lua commands that write data to filename. Each line
// is written with file.writeline as an escaped string literal. A trailing
// '\r' is dropped from each line so CRLF sources upload cleanly.
func EncodeFile(data, filename string) []string {
	lines := strings.Split(data, "\n")
	cmds := make([]string, 0, len(lines)+2)
	cmds = append(cmds, fmt.Sprintf("file.open(%s, \"w\")\n", luaQuote(filename)))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		cmds = append(cmds, fmt.Sprintf("file.writeline(%s)\n", luaQuote(line)))
	}
	cmds = append(cmds, "file.close()\n")
	return cmds
}

func (s *Session) sendPaced(ctx context.Context, cmds []string) error {
	w, err := s.beginPromptWait()
	if err != nil {
		return err
	}
	defer s.endPromptWait(w)

	for i, cmd := range cmds {
		// a prompt left over from before this step must not release it
		select {
		case <-w.ch:
		default:
		}

		if err := s.SendData(StringToBytes(cmd)); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := s.awaitPrompt(ctx, w, i, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) awaitPrompt(ctx context.Context, w *promptWaiter, step int, cmd string) error {
	var timeout <-chan time.Time
	if d := s.config.StepTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-w.ch:
		return nil
	case <-timeout:
		return &UploadStalledError{Step: step, Command: strings.TrimSuffix(cmd, "\n"), Timeout: s.config.StepTimeout}
	case <-ctx.Done():
		return ctx.Err()
	case <-w.closed:
		return ErrNotConnected
	case <-w.lost:
		select {
		case <-w.closed:
			return ErrNotConnected
		default:
		}
		return &ConnectionError{Path: s.path, Op: "read", Err: io.ErrUnexpectedEOF}
	}
}

func (s *Session) beginPromptWait() (*promptWaiter, error) {
	s.mu.Lock()
	if s.port == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	closed, lost := s.closed, s.readerDone
	s.mu.Unlock()

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.promptWait != nil {
		return nil, ErrBusy
	}
	w := &promptWaiter{ch: make(chan struct{}, 1), closed: closed, lost: lost}
	s.promptWait = w.ch
	return w, nil
}

func (s *Session) endPromptWait(w *promptWaiter) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.promptWait == w.ch {
		s.promptWait = nil
	}
}

// luaQuote renders s as a Lua double-quoted literal. Control bytes are
// escaped so a payload line can never break the interpreter's input line.
func luaQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case (c < 0x20 && c != '\t') || c == 0x7f:
			fmt.Fprintf(&b, `\%03d`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
