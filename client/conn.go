// Package client implements the connection state machine and the
// high-level client: subscribe, reducer calls, frame dispatch into the
// cache, and application callbacks.
package client

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mickamy/stdb-go/wire"
)

var (
	// ErrNotConnected is returned when an operation needs a live transport.
	ErrNotConnected = errors.New("client: not connected")
	// ErrHandshakeFailed is returned when the transport opens but the
	// protocol handshake is rejected.
	ErrHandshakeFailed = errors.New("client: handshake failed")
	// ErrConnectionFailed is returned when the transport cannot be opened.
	ErrConnectionFailed = errors.New("client: connection failed")
	// ErrUnknownReducer is returned synchronously when a reducer name is
	// not in the schema.
	ErrUnknownReducer = errors.New("client: unknown reducer")
	// ErrNoSchema is returned when an operation needs a schema and the
	// client was built without one.
	ErrNoSchema = errors.New("client: no schema loaded")
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("UnknownState(%d)", int32(s))
}

// Transport delivers binary frames in both directions. Receive blocks for
// the next frame; a nil frame with nil error means a skippable frame
// arrived (ping, text), and io.EOF means the peer closed cleanly.
type Transport interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Config carries the connection parameters.
type Config struct {
	// Host is the server's host:port, without a scheme.
	Host string
	// Database is the database name in the subscribe URL.
	Database string
	// Token, when set, is sent as a bearer credential during the
	// handshake.
	Token string
	// Compression selects the server-side frame compression.
	Compression wire.Compression
	// Backoff governs reconnect delays; zero value uses DefaultBackoff.
	Backoff Backoff
	// MaxReconnectAttempts caps reconnection; zero uses the default.
	MaxReconnectAttempts int
	// Logger receives connection lifecycle and frame diagnostics.
	// The zero value logs nothing.
	Logger zerolog.Logger
}

const defaultMaxReconnectAttempts = 10

func (c Config) backoff() Backoff {
	if c.Backoff == (Backoff{}) {
		return DefaultBackoff
	}
	return c.Backoff
}

func (c Config) maxReconnects() int {
	if c.MaxReconnectAttempts == 0 {
		return defaultMaxReconnectAttempts
	}
	return c.MaxReconnectAttempts
}

// Conn is the connection state machine. All methods except State must be
// called from the single consumer goroutine driving the transport.
type Conn struct {
	cfg       Config
	log       zerolog.Logger
	transport Transport

	state atomic.Int32

	// Monotonic allocation counters, both starting at 1. They never wrap
	// within one connection.
	nextRequestID  uint32
	nextQuerySetID uint32

	// attempts counts disconnects since the last successful connect.
	attempts int

	identity     [32]byte
	connectionID uuid.UUID
	token        string
}

// NewConn returns a disconnected state machine.
func NewConn(cfg Config) *Conn {
	return &Conn{
		cfg:            cfg,
		log:            cfg.Logger,
		nextRequestID:  1,
		nextQuerySetID: 1,
	}
}

// State returns the current lifecycle state. Safe from any goroutine.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("connection state")
	}
}

// URL returns the subscribe endpoint for this configuration.
func (c *Conn) URL() string {
	return fmt.Sprintf("ws://%s/v1/database/%s/subscribe?compression=%s",
		c.cfg.Host, c.cfg.Database, c.cfg.Compression)
}

// Attach adopts an already-open transport and resets the reconnect
// counter. The caller keeps ownership of the transport's lifetime only if
// it never lets the connection close it via Close.
func (c *Conn) Attach(t Transport) {
	c.transport = t
	c.attempts = 0
	c.setState(StateConnected)
	c.log.Info().Msg("transport attached")
}

// NextRequestID allocates a request id for one client message.
func (c *Conn) NextRequestID() uint32 {
	id := c.nextRequestID
	c.nextRequestID++
	return id
}

// NextQuerySetID allocates a query set id for one subscription.
func (c *Conn) NextQuerySetID() uint32 {
	id := c.nextQuerySetID
	c.nextQuerySetID++
	return id
}

// Identity returns the server-issued identity, valid once authenticated.
func (c *Conn) Identity() [32]byte { return c.identity }

// ConnectionID returns the server-issued connection id, valid once
// authenticated.
func (c *Conn) ConnectionID() uuid.UUID { return c.connectionID }

// Token returns the server-issued token, valid once authenticated.
func (c *Conn) Token() string { return c.token }

// Send serializes and transmits one client message.
func (c *Conn) Send(m wire.ClientMessage) error {
	if s := c.State(); s != StateConnected && s != StateAuthenticated {
		return fmt.Errorf("%w: state %s", ErrNotConnected, s)
	}
	if err := c.transport.Send(wire.EncodeClientMessage(m)); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// Receive blocks for the next frame from the transport.
func (c *Conn) Receive() ([]byte, error) {
	if s := c.State(); s != StateConnected && s != StateAuthenticated {
		return nil, fmt.Errorf("%w: state %s", ErrNotConnected, s)
	}
	return c.transport.Receive()
}

// ProcessFrame decodes one server frame and advances the state machine.
// An initial_connection frame captures the credentials and transitions to
// authenticated.
func (c *Conn) ProcessFrame(frame []byte) (wire.ServerMessage, error) {
	msg, err := wire.DecodeServerMessage(frame)
	if err != nil {
		return nil, err
	}
	if ic, ok := msg.(*wire.InitialConnection); ok {
		c.identity = ic.Identity
		c.connectionID = ic.ConnectionID
		c.token = ic.Token
		c.setState(StateAuthenticated)
		c.log.Info().Stringer("connection_id", ic.ConnectionID).Msg("authenticated")
	}
	return msg, nil
}

// RecordDisconnect transitions to disconnected and bumps the reconnect
// attempt counter. The reason is logged, not acted on.
func (c *Conn) RecordDisconnect(reason error) {
	c.attempts++
	c.setState(StateDisconnected)
	ev := c.log.Info().Int("attempts", c.attempts)
	if reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("disconnected")
}

// Attempts returns the number of disconnects since the last successful
// connect.
func (c *Conn) Attempts() int { return c.attempts }

// ShouldReconnect reports whether another reconnect attempt is allowed.
func (c *Conn) ShouldReconnect() bool {
	return c.attempts > 0 && c.attempts <= c.cfg.maxReconnects()
}

// ReconnectDelay returns the backoff before the next reconnect attempt:
// the first retry after a disconnect waits the base delay.
func (c *Conn) ReconnectDelay() time.Duration {
	n := c.attempts - 1
	if n < 0 {
		n = 0
	}
	return c.cfg.backoff().Delay(n)
}

// Close transitions through closing, shuts the transport, and lands in
// disconnected. No events are emitted on behalf of a deliberate close.
func (c *Conn) Close() error {
	c.setState(StateClosing)
	var err error
	if c.transport != nil {
		err = c.transport.Close()
	}
	c.setState(StateDisconnected)
	return err
}
