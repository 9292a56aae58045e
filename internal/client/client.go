// Package client supervises the websocket session of one canvas
// participant: dialing, keepalives, inbound dispatch, and the single
// reconnection attempt after a non-clean closure.
package client

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rosalva003/lighttrails/internal/protocol"
	"github.com/Rosalva003/lighttrails/internal/trail"
)

// State is the connection lifecycle: CONNECTING -> OPEN -> CLOSED, with at
// most one trip back to CONNECTING after an abnormal closure.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

const (
	defaultKeepAlive  = 25 * time.Second
	defaultRetryDelay = 2 * time.Second
	writeTimeout      = 10 * time.Second
)

// ErrNotConnected is returned by Send* while the session is not OPEN;
// outbound messages are dropped, never queued.
var ErrNotConnected = errors.New("client: not connected")

// ErrPointSpacing is returned when a trail point lands too close to the
// previous one and is rejected before it is ever sent.
var ErrPointSpacing = errors.New("client: point below minimum spacing")

// Events carries the inbound dispatch callbacks. Nil entries are skipped.
// Callbacks run on the read goroutine and must not block.
type Events struct {
	OnWelcome     func(protocol.Welcome)
	OnJoined      func(protocol.ClientJoined)
	OnLeft        func(protocol.ClientLeft)
	OnTrail       func(protocol.TrailEvent)
	OnCursor      func(protocol.CursorEvent)
	OnClear       func(protocol.ClearEvent)
	OnSettings    func(protocol.UserSettings)
	OnAck         func(protocol.SettingsAck)
	OnPong        func(protocol.Pong)
	OnServerError func(protocol.ErrorEvent)
	OnStateChange func(State)
}

// Options configures a Client. Zero durations use the package defaults.
type Options struct {
	URL        string
	KeepAlive  time.Duration
	RetryDelay time.Duration
	MinSpacing float64
	Dialer     *websocket.Dialer
}

// Client is the reconnection controller plus outbound message surface.
type Client struct {
	opts   Options
	events Events
	gate   *trail.SpacingGate

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	retryTimer *time.Timer
	retried    bool
	closed     bool
}

func New(opts Options, events Events) *Client {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:   opts,
		events: events,
		gate:   trail.NewSpacingGate(opts.MinSpacing),
		state:  StateClosed,
	}
}

// Connect dials the server and starts the read and keepalive loops. It
// returns once the session is OPEN or the dial failed.
func (c *Client) Connect() error {
	c.setState(StateConnecting)

	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.setState(StateClosed)
		return err
	}
	c.adopt(conn)
	return nil
}

// adopt installs a freshly dialed connection and spins up its loops.
func (c *Client) adopt(conn *websocket.Conn) {
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.retried = false
	notify := c.events.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(StateOpen)
	}

	go c.readLoop(conn, done)
	go c.keepalive(done)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close performs a clean shutdown: a normal close frame, no reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	notify := c.events.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(StateClosed)
	}
	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	return conn.Close()
}

// SendTrailPoint emits one drawn point, subject to the spacing gate.
func (c *Client) SendTrailPoint(x, y float64, raw protocol.RawSettings) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !c.gate.Accept(x, y) {
		c.mu.Unlock()
		return ErrPointSpacing
	}
	err := c.writeLocked(protocol.NewLightTrail(protocol.Point{X: x, Y: y}, raw))
	c.mu.Unlock()
	return err
}

// EndStroke resets the spacing gate, e.g. when the pointer lifts.
func (c *Client) EndStroke() {
	c.mu.Lock()
	c.gate.Reset()
	c.mu.Unlock()
}

// SendCursor emits the local cursor position.
func (c *Client) SendCursor(x, y float64, raw protocol.RawSettings) error {
	return c.send(protocol.NewMousePosition(x, y, raw))
}

// SendSettings submits a settings update; the reply arrives as settingsAck.
func (c *Client) SendSettings(raw protocol.RawSettings) error {
	return c.send(protocol.NewUpdateSettings(raw))
}

// SendClear asks the server to broadcast a canvas wipe.
func (c *Client) SendClear() error {
	return c.send(protocol.NewClear())
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.conn == nil {
		return ErrNotConnected
	}
	return c.writeLocked(v)
}

// writeLocked assumes c.mu is held; gorilla connections allow only one
// concurrent writer.
func (c *Client) writeLocked(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *Client) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(protocol.NewPing()); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.handleClosure(conn, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		return
	}

	switch m := msg.(type) {
	case *protocol.Welcome:
		if c.events.OnWelcome != nil {
			c.events.OnWelcome(*m)
		}
	case *protocol.ClientJoined:
		if c.events.OnJoined != nil {
			c.events.OnJoined(*m)
		}
	case *protocol.ClientLeft:
		if c.events.OnLeft != nil {
			c.events.OnLeft(*m)
		}
	case *protocol.TrailEvent:
		if c.events.OnTrail != nil {
			c.events.OnTrail(*m)
		}
	case *protocol.CursorEvent:
		if c.events.OnCursor != nil {
			c.events.OnCursor(*m)
		}
	case *protocol.ClearEvent:
		if c.events.OnClear != nil {
			c.events.OnClear(*m)
		}
	case *protocol.UserSettings:
		if c.events.OnSettings != nil {
			c.events.OnSettings(*m)
		}
	case *protocol.SettingsAck:
		if c.events.OnAck != nil {
			c.events.OnAck(*m)
		}
	case *protocol.Pong:
		if c.events.OnPong != nil {
			c.events.OnPong(*m)
		}
	case *protocol.ErrorEvent:
		if c.events.OnServerError != nil {
			c.events.OnServerError(*m)
		}
	}
}

// handleClosure decides what a dead connection means: user-initiated or
// normal closures are terminal; anything else earns exactly one delayed
// reconnection attempt.
func (c *Client) handleClosure(conn *websocket.Conn, err error) {
	c.mu.Lock()

	if c.conn != conn {
		// A newer connection already took over.
		c.mu.Unlock()
		return
	}
	c.conn = nil

	if c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) || c.retried {
		c.state = StateClosed
		notify := c.events.OnStateChange
		c.mu.Unlock()
		if notify != nil {
			notify(StateClosed)
		}
		return
	}

	c.retried = true
	c.state = StateConnecting
	c.retryTimer = time.AfterFunc(c.opts.RetryDelay, c.redial)
	notify := c.events.OnStateChange
	c.mu.Unlock()
	if notify != nil {
		notify(StateConnecting)
	}
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.setState(StateClosed)
		return
	}
	c.adopt(conn)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	notify := c.events.OnStateChange
	c.mu.Unlock()

	if changed && notify != nil {
		notify(s)
	}
}
