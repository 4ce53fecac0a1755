package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/logging"
)

type fakeSession struct {
	mu    sync.Mutex
	token string
	subs  []func(models.Session)
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) Subscribe(fn func(models.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs = nil
	}
}

func (f *fakeSession) set(token string) {
	f.mu.Lock()
	f.token = token
	subs := make([]func(models.Session), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	s := models.Session{Token: token}
	if token != "" {
		s.User = &models.UserProfile{ID: "1"}
	}
	for _, fn := range subs {
		fn(s)
	}
}

// wsServer accepts connections, records every frame it receives and lets
// the test push frames or hang up.
type wsServer struct {
	*httptest.Server
	received chan Message
	conns    chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{received: make(chan Message, 16), conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- ws
		for {
			var msg Message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			s.received <- msg
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) expectFrame(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-s.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Message{}
}

func (s *wsServer) expectNoFrame(t *testing.T) {
	t.Helper()
	select {
	case msg := <-s.received:
		t.Fatalf("unexpected frame %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnect_AnonymousThenLogin_SendsAuthOnce(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{}
	c := New(srv.url(), sess, logging.NewNop())
	defer c.Stop()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateOpen, c.State())
	srv.expectNoFrame(t)

	sess.set("t1")
	msg := srv.expectFrame(t)
	assert.Equal(t, Message{Type: TypeAuth, Token: "t1"}, msg)
	assert.Equal(t, StateAuthenticated, c.State())

	sess.set("t1")
	srv.expectNoFrame(t)
}

func TestLogoutThenOtherAccount_ReopensForNewUser(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{token: "tA"}
	c := New(srv.url(), sess, logging.NewNop())
	defer c.Stop()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "tA", srv.expectFrame(t).Token)
	first := c.ConnectionID()

	sess.set("")
	require.Eventually(t, func() bool {
		return c.State() == StateOpen && c.ConnectionID() != first
	}, 2*time.Second, 10*time.Millisecond)
	srv.expectNoFrame(t)
	anonymous := c.ConnectionID()

	sess.set("tB")
	assert.Equal(t, Message{Type: TypeAuth, Token: "tB"}, srv.expectFrame(t))
	require.Eventually(t, func() bool { return c.State() == StateAuthenticated }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, anonymous, c.ConnectionID())
	srv.expectNoFrame(t)
}

func TestAccountSwitch_ReopensAndAuthenticatesOnce(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{token: "tA"}
	c := New(srv.url(), sess, logging.NewNop())
	defer c.Stop()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "tA", srv.expectFrame(t).Token)
	first := c.ConnectionID()

	sess.set("tB")
	assert.Equal(t, "tB", srv.expectFrame(t).Token)
	require.Eventually(t, func() bool {
		return c.State() == StateAuthenticated && c.ConnectionID() != first
	}, 2*time.Second, 10*time.Millisecond)
	srv.expectNoFrame(t)
}

func TestConnect_AlreadyLoggedIn_AuthOnOpen(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{token: "t1"}
	c := New(srv.url(), sess, logging.NewNop())
	defer c.Stop()

	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, "t1", srv.expectFrame(t).Token)
	assert.Equal(t, StateAuthenticated, c.State())
	assert.NotEmpty(t, c.ConnectionID())
	srv.expectNoFrame(t)
}

func TestConnect_NewConnectionAuthenticatesAgain(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{token: "t1"}
	c := New(srv.url(), sess, logging.NewNop())
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	first := c.ConnectionID()
	srv.expectFrame(t)
	c.Close()
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Connect(ctx))
	srv.expectFrame(t)
	assert.NotEqual(t, first, c.ConnectionID())
}

func TestConnect_Twice(t *testing.T) {
	srv := newWSServer(t)
	c := New(srv.url(), &fakeSession{}, logging.NewNop())
	defer c.Stop()

	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnect_DialFailure(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", &fakeSession{}, logging.NewNop())

	require.Error(t, c.Connect(context.Background()))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestInboundFramesReachHandler(t *testing.T) {
	srv := newWSServer(t)
	c := New(srv.url(), &fakeSession{}, logging.NewNop())
	defer c.Stop()

	got := make(chan Message, 1)
	c.OnMessage(func(m Message) { got <- m })
	require.NoError(t, c.Connect(context.Background()))

	ws := <-srv.conns
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, ws.WriteJSON(map[string]any{"type": TypeNotification, "count": 3}))

	select {
	case m := <-got:
		assert.Equal(t, TypeNotification, m.Type)
		var body map[string]any
		require.NoError(t, json.Unmarshal(m.Raw, &body))
		assert.EqualValues(t, 3, body["count"])
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestServerHangupDisconnects(t *testing.T) {
	srv := newWSServer(t)
	c := New(srv.url(), &fakeSession{}, logging.NewNop())
	defer c.Stop()

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})
	require.NoError(t, c.Connect(context.Background()))

	ws := <-srv.conns
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateOpen, StateDisconnected}, states)
}

func TestClose_WhenDisconnectedIsNoop(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", &fakeSession{}, logging.NewNop())
	c.Close()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestStop_UnsubscribesFromSession(t *testing.T) {
	srv := newWSServer(t)
	sess := &fakeSession{}
	c := New(srv.url(), sess, logging.NewNop())
	c.Stop()

	sess.mu.Lock()
	assert.Empty(t, sess.subs)
	sess.mu.Unlock()

	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}
