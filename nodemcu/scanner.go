package nodemcu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

var errFound = errors.New("device found")

// Scanner validates every available path concurrently.
type Scanner struct {
	transport Transport
	console   Console
	opts      []Option
}

// NewScanner returns a scanner over transport. opts are passed to every
// validator it starts.
func NewScanner(transport Transport, console Console, opts ...Option) *Scanner {
	if console == nil {
		console = DiscardConsole
	}
	return &Scanner{transport: transport, console: console, opts: opts}
}

// Scan enumerates paths once and validates each of them concurrently. found
// is called for every path that confirms, as soon as it does; calls are
// serialized. A failing path never stops the others. Only an enumeration
// error is returned.
func (s *Scanner) Scan(ctx context.Context, found func(path string)) error {
	var mu sync.Mutex
	return s.run(ctx, func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		found(path)
		return nil
	})
}

// ScanFirst returns the first path that confirms and cancels the validators
// still running. It returns ErrNoDevice if none confirms.
func (s *Scanner) ScanFirst(ctx context.Context) (string, error) {
	var (
		mu    sync.Mutex
		first string
	)
	err := s.run(ctx, func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		if first == "" {
			first = path
		}
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	if first == "" {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrNoDevice
	}
	return first, nil
}

func (s *Scanner) run(ctx context.Context, found func(path string) error) error {
	s.console.WriteLine("Starting scan...")
	paths, err := s.transport.Ports()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		path := path
		s.console.WriteLine("Found serial port " + path + ". Testing...")
		g.Go(func() error {
			v := NewValidator(s.transport, path, s.console, s.opts...)
			err := v.Validate(gctx)
			switch {
			case err == nil:
				return found(path)
			case errors.Is(err, ErrHandshakeTimeout), errors.Is(err, context.Canceled):
			default:
				s.console.WriteLine(fmt.Sprintf("Skipping %s: %v", path, err))
			}
			return nil
		})
	}
	return g.Wait()
}
