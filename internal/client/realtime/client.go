// Package realtime maintains the websocket channel used for live
// notifications. The channel may open before or after login; either way the
// first authenticated frame on a connection is sent exactly once.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	handshakeWait  = 10 * time.Second
	maxMessageSize = 64 << 10

	TypeAuth         = "auth"
	TypeNotification = "notification"
)

var (
	ErrAlreadyConnected = errors.New("realtime channel already connected")
	ErrClosed           = errors.New("realtime channel closed")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	}
	return "disconnected"
}

// Message is a channel frame. Raw keeps the whole inbound frame for
// handlers that need fields beyond the type.
type Message struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	Raw   json.RawMessage `json:"-"`
}

// SessionSource is what the channel needs from the session.
type SessionSource interface {
	Token() string
	Subscribe(fn func(models.Session)) (unsubscribe func())
}

type conn struct {
	id        string
	ws        *websocket.Conn
	authSent  bool
	authToken string

	writeMu sync.Mutex
}

func (cn *conn) write(msg Message) error {
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	if err := cn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return cn.ws.WriteJSON(msg)
}

func (cn *conn) close() {
	cn.writeMu.Lock()
	_ = cn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	cn.writeMu.Unlock()
	_ = cn.ws.Close()
}

type Client struct {
	url    string
	sess   SessionSource
	dialer *websocket.Dialer
	log    logging.Logger

	// ctx bounds redials started from session changes; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	cur         *conn
	gen         uint64
	stopped     bool
	onMessage   func(Message)
	onState     func(State)
	unsubscribe func()
}

// New builds a client for url and starts watching sess so that a login
// after the channel opened still authenticates it, and a logout or account
// switch never leaves the channel bound to the old token.
func New(url string, sess SessionSource, log logging.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:    url,
		sess:   sess,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeWait},
		log:    log.With("component", "realtime"),
		ctx:    ctx,
		cancel: cancel,
	}
	c.unsubscribe = sess.Subscribe(func(s models.Session) { c.sessionChanged(s.Token) })
	return c
}

// sessionChanged reacts to a session transition. A connection that already
// authenticated with a different token (or before a logout) is replaced by
// a fresh one; otherwise a pending auth frame is sent.
func (c *Client) sessionChanged(token string) {
	c.mu.Lock()
	cn := c.cur
	stale := cn != nil && cn.authSent && cn.authToken != token
	c.mu.Unlock()

	if stale {
		c.redial(cn)
		return
	}
	if token != "" {
		c.trySendAuth(c.ctx)
	}
}

// redial retires cn, if still current, and dials a new connection in the
// background.
func (c *Client) redial(cn *conn) {
	c.mu.Lock()
	if c.cur != cn || c.stopped {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.cur = nil
	notify := c.setStateLocked(StateDisconnected)
	c.wg.Add(1)
	c.mu.Unlock()

	cn.close()
	notify()
	c.log.Info(c.ctx, "session changed, reopening realtime channel", "conn_id", cn.id)

	go func() {
		defer c.wg.Done()
		err := c.Connect(c.ctx)
		if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrAlreadyConnected) {
			c.log.Warn(c.ctx, "realtime channel reopen failed", "error", err)
		}
	}()
}

// OnMessage sets the handler for inbound frames. It runs on the read
// goroutine.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID identifies the current connection, or is empty.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.id
}

// Connect dials the endpoint and authenticates immediately when the
// session already holds a token. There is no automatic reconnection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			_ = ws.Close()
		}
		return ErrClosed
	}
	if err != nil {
		notify = c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return fmt.Errorf("dial realtime channel: %w", err)
	}
	cn := &conn{id: uuid.NewString(), ws: ws}
	c.cur = cn
	notify = c.setStateLocked(StateOpen)
	c.mu.Unlock()
	notify()

	c.log.Info(ctx, "realtime channel open", "conn_id", cn.id)
	go c.readLoop(cn)
	c.trySendAuth(ctx)
	return nil
}

// trySendAuth sends the auth frame on the current connection if it has not
// been sent there yet and the session holds a token.
func (c *Client) trySendAuth(ctx context.Context) {
	token := c.sess.Token()
	if token == "" {
		return
	}

	c.mu.Lock()
	cn := c.cur
	if cn == nil || cn.authSent || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	cn.authSent = true
	cn.authToken = token
	c.mu.Unlock()

	if err := cn.write(Message{Type: TypeAuth, Token: token}); err != nil {
		c.log.Warn(ctx, "failed to send auth frame", "conn_id", cn.id, "error", err)
		c.dropConnection(cn)
		return
	}

	c.mu.Lock()
	notify := func() {}
	if c.cur == cn && c.state == StateOpen {
		notify = c.setStateLocked(StateAuthenticated)
	}
	c.mu.Unlock()
	notify()
	c.log.Debug(ctx, "realtime channel authenticated", "conn_id", cn.id)
}

func (c *Client) readLoop(cn *conn) {
	ctx := context.Background()
	cn.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn(ctx, "realtime read failed", "conn_id", cn.id, "error", err)
			}
			c.dropConnection(cn)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug(ctx, "ignoring undecodable frame", "conn_id", cn.id, "error", err)
			continue
		}
		msg.Raw = data

		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// dropConnection retires cn after an error, if it is still current.
func (c *Client) dropConnection(cn *conn) {
	c.mu.Lock()
	if c.cur != cn {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	_ = cn.ws.Close()
	c.log.Info(context.Background(), "realtime channel closed", "conn_id", cn.id)
	notify()
}

// Close shuts the channel if it is connecting or open. A dial in progress
// is abandoned.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.gen++
	cn := c.cur
	c.cur = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if cn != nil {
		cn.close()
	}
	notify()
}

// Stop closes the channel, stops watching the session and waits for any
// reopen in progress. The client cannot be connected again.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()
	c.Close()
}

// setStateLocked records s and returns the hook call to make once the lock
// is released.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	fn := c.onState
	if fn == nil {
		return func() {}
	}
	return func() { fn(s) }
}
