package nodemcu

import "time"

const (
	// DefaultBaudRate is the only rate NodeMCU's interpreter listens on out of the box.
	DefaultBaudRate = 9600

	// DefaultHandshakeTimeout bounds the wait for the confirmation echo.
	DefaultHandshakeTimeout = 2000 * time.Millisecond

	// DefaultStepTimeout bounds each prompt wait during uploads.
	DefaultStepTimeout = 5 * time.Second

	// DefaultMaxLineLength caps the pending line buffer.
	DefaultMaxLineLength = 64 * 1024
)

// Config holds session, handshake and upload settings.
type Config struct {
	// BaudRate used when opening the port
	BaudRate int

	// HandshakeTimeout is how long Validate waits for the confirmation line
	HandshakeTimeout time.Duration

	// StepTimeout is how long an upload step waits for the prompt.
	// Zero disables the bound.
	StepTimeout time.Duration

	// MaxLineLength caps unterminated input. Zero means unbounded.
	MaxLineLength int
}

func defaultConfig() Config {
	return Config{
		BaudRate:         DefaultBaudRate,
		HandshakeTimeout: DefaultHandshakeTimeout,
		StepTimeout:      DefaultStepTimeout,
		MaxLineLength:    DefaultMaxLineLength,
	}
}

// Option is a functional option for sessions, validators and scanners.
type Option func(*Config)

// WithBaudRate overrides the serial bit rate.
func WithBaudRate(baud int) Option {
	return func(c *Config) {
		if baud > 0 {
			c.BaudRate = baud
		}
	}
}

// WithHandshakeTimeout sets how long Validate waits for the device to confirm.
//
// Example:
//
//	v := nodemcu.NewValidator(t, "/dev/ttyUSB0", console,
//	    nodemcu.WithHandshakeTimeout(3*time.Second))
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.HandshakeTimeout = d
		}
	}
}

// WithStepTimeout bounds each prompt wait of an upload. A zero value waits forever.
func WithStepTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.StepTimeout = d
		}
	}
}

// WithMaxLineLength caps the line buffer; 0 disables the cap.
func WithMaxLineLength(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxLineLength = n
		}
	}
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
