package harness

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionTestTimeout = 2 * time.Second

var testUpgrader = websocket.Upgrader{}

// echoSocketServer upgrades every request and echoes each text frame back
// with its type rewritten, which is enough to exercise the full session
// lifecycle.
func echoSocketServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			frame["type"] = "ack"
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}))
}

func socketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSessionOpensAndReceivesFrames(t *testing.T) {
	server := echoSocketServer()
	defer server.Close()

	m := NewSessionManager(nil)
	defer m.CloseAll()
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)
	require.Equal(t, SessionOpen, s.State())

	require.NoError(t, s.Send("ping", map[string]interface{}{"seq": 7}))
	msg, ok := s.AwaitMessage(func(m SocketMessage) bool { return m.Type == "ack" }, sessionTestTimeout)
	require.True(t, ok, "the echoed frame should arrive")
	assert.Equal(t, float64(7), msg.Field("seq"))
	require.Len(t, s.Messages(), 1)
}

func TestSessionGracefulCloseEndsInClosed(t *testing.T) {
	server := echoSocketServer()
	defer server.Close()

	m := NewSessionManager(nil)
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, SessionClosed, s.State())
	assert.NoError(t, s.Err())

	assert.Error(t, s.Send("ping", nil), "a closed session must refuse writes")
}

func TestSessionServerInitiatedCloseEndsInClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}))
	defer server.Close()

	m := NewSessionManager(nil)
	defer m.CloseAll()
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)

	require.True(t, s.AwaitClosed(sessionTestTimeout))
	assert.Equal(t, SessionClosed, s.State())
}

func TestSessionAbruptDropEndsInFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Kill the TCP connection without a close handshake.
		_ = conn.UnderlyingConn().Close()
	}))
	defer server.Close()

	m := NewSessionManager(nil)
	defer m.CloseAll()
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)

	require.True(t, s.AwaitClosed(sessionTestTimeout))
	assert.Equal(t, SessionFailed, s.State())
	assert.Error(t, s.Err())
}

func TestSessionDialFailureIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no socket here", http.StatusNotFound)
	}))
	defer server.Close()

	m := NewSessionManager(nil)
	s, err := m.Open(socketURL(server) + "/nope")
	require.Error(t, err)
	require.NotNil(t, s)
	assert.Equal(t, SessionFailed, s.State())
	assert.Error(t, s.Err())

	_, ok := s.AwaitMessage(func(SocketMessage) bool { return true }, sessionTestTimeout)
	assert.False(t, ok, "a failed session never produces frames")
}

func TestOpenManyIsolatesDialFailures(t *testing.T) {
	server := echoSocketServer()
	defer server.Close()

	m := NewSessionManager(nil)
	defer m.CloseAll()
	sessions := m.OpenMany([]string{
		socketURL(server),
		"ws://127.0.0.1:1/unreachable",
		socketURL(server),
	})
	require.Len(t, sessions, 3)

	assert.Equal(t, SessionOpen, sessions[0].State())
	assert.Equal(t, SessionFailed, sessions[1].State())
	assert.Equal(t, SessionOpen, sessions[2].State())
	assert.Equal(t, 2, m.OpenCount())
}

func TestCloseAllClosesEverySession(t *testing.T) {
	server := echoSocketServer()
	defer server.Close()

	m := NewSessionManager(nil)
	for i := 0; i < 3; i++ {
		_, err := m.Open(socketURL(server))
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.OpenCount())

	m.CloseAll()
	assert.Equal(t, 0, m.OpenCount())
}

func TestSessionSendTextDeliversRawBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := map[string]interface{}{"type": "received", "raw": string(data)}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	m := NewSessionManager(nil)
	defer m.CloseAll()
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)

	require.NoError(t, s.SendText("not json {"))
	msg, ok := s.AwaitMessage(func(m SocketMessage) bool { return m.Type == "received" }, sessionTestTimeout)
	require.True(t, ok)
	assert.Equal(t, "not json {", msg.Field("raw"), "the frame must arrive byte for byte")
}

func TestSessionSendTextRefusedWhenNotOpen(t *testing.T) {
	server := echoSocketServer()
	defer server.Close()

	m := NewSessionManager(nil)
	s, err := m.Open(socketURL(server))
	require.NoError(t, err)
	s.Close()

	err = s.SendText("too late")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot send")
}
