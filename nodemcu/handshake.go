package nodemcu

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// ConfirmationMarker is what a NodeMCU prints in answer to ProbeCommand.
	ConfirmationMarker = "node mcu confirmed"

	// ProbeCommand makes the interpreter print the confirmation marker. The
	// literal is split so the echo of the command itself never matches.
	ProbeCommand = "print('node mcu '..'confirmed')\n"
)

// HandshakeState is a step of the validation state machine.
type HandshakeState int32

const (
	StateIdle HandshakeState = iota
	StateConnecting
	StateAwaitingConfirmation
	StateConfirmed
	StateTimedOut
	StateClosed
)

func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed-out"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Validator checks whether a path hosts a NodeMCU: connect, send the probe,
// wait for the confirmation line or the timeout, disconnect.
//
// The timer and the line listener race; whichever moves the state out of
// StateAwaitingConfirmation first wins and the other becomes a no-op.
type Validator struct {
	session *Session
	console Console
	config  Config

	state    atomic.Int32
	outcome  HandshakeState
	resolved chan struct{}
	timer    *time.Timer
}

// NewValidator returns a validator for one candidate path. A validator is
// single-use.
func NewValidator(transport Transport, path string, console Console, opts ...Option) *Validator {
	if console == nil {
		console = DiscardConsole
	}
	return &Validator{
		session:  NewSession(transport, path, console, opts...),
		console:  console,
		config:   buildConfig(opts),
		resolved: make(chan struct{}),
	}
}

// Path returns the candidate device path.
func (v *Validator) Path() string { return v.session.Path() }

// State returns the current state.
func (v *Validator) State() HandshakeState { return HandshakeState(v.state.Load()) }

// Outcome returns the terminal state reached before closing: StateConfirmed,
// StateTimedOut, or StateClosed when validation was aborted.
func (v *Validator) Outcome() HandshakeState { return v.outcome }

// Validate runs the handshake. It returns nil when the device confirmed,
// ErrHandshakeTimeout when it stayed silent, and a *ConnectionError when the
// port could not be opened (in which case nothing is sent).
func (v *Validator) Validate(ctx context.Context) error {
	if !v.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return errors.New("nodemcu: validator already used")
	}

	v.console.WriteLine("Attempting connection")
	if err := v.session.Connect(); err != nil {
		v.outcome = StateClosed
		v.state.Store(int32(StateClosed))
		return err
	}
	v.console.WriteLine("Connected")

	v.state.Store(int32(StateAwaitingConfirmation))
	v.timer = time.AfterFunc(v.config.HandshakeTimeout, v.expire)
	v.session.AddLineListener(func(l Line) {
		if strings.Contains(l.Text, ConfirmationMarker) {
			v.confirm()
		}
	})

	v.console.WriteLine("Sending confirmation test")
	if err := v.session.SendData(StringToBytes(ProbeCommand)); err != nil {
		if v.resolve(StateClosed) {
			v.timer.Stop()
			v.finish()
			return err
		}
	}

	select {
	case <-v.resolved:
	case <-ctx.Done():
		if v.resolve(StateClosed) {
			v.timer.Stop()
			v.finish()
			return ctx.Err()
		}
		<-v.resolved
	}

	switch v.State() {
	case StateConfirmed:
		v.console.WriteLine("Confirmed - NodeMCU found")
		v.finish()
		return nil
	default:
		v.console.WriteLine("Timed out - not running NodeMCU")
		v.finish()
		return ErrHandshakeTimeout
	}
}

func (v *Validator) confirm() {
	if v.resolve(StateConfirmed) {
		v.timer.Stop()
	}
}

func (v *Validator) expire() {
	v.resolve(StateTimedOut)
}

// resolve moves out of StateAwaitingConfirmation exactly once.
func (v *Validator) resolve(to HandshakeState) bool {
	if !v.state.CompareAndSwap(int32(StateAwaitingConfirmation), int32(to)) {
		return false
	}
	close(v.resolved)
	return true
}

func (v *Validator) finish() {
	v.outcome = v.State()
	if err := v.session.Disconnect(); err != nil && !errors.Is(err, ErrNotConnected) {
		v.console.WriteLine("Disconnect failed: " + err.Error())
	}
	v.state.Store(int32(StateClosed))
}
