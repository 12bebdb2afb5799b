package realtime

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcast_AllSubscribersReceiveSameMessage(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitForCount(t, hub, 2)

	msg := []byte(`{"id":1,"label":"temp","value":21.5}`)
	hub.Broadcast(msg)

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		kind, got, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.Equal(t, msg, got)
	}
}

func TestBroadcast_LateSubscriberGetsNoReplay(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	early := dial(t, srv)
	waitForCount(t, hub, 1)
	hub.Broadcast([]byte(`"first"`))

	require.NoError(t, early.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, got, err := early.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `"first"`, string(got))

	late := dial(t, srv)
	waitForCount(t, hub, 2)

	require.NoError(t, late.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
}

func TestClosedSubscriberIsRemoved(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitForCount(t, hub, 1)
	require.NoError(t, conn.Close())
	waitForCount(t, hub, 0)

	hub.Broadcast([]byte(`"nobody listening"`))
}

func TestCloseRejectsNewSubscribers(t *testing.T) {
	hub := NewHub(quietLogger(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitForCount(t, hub, 1)
	hub.Close()
	assert.Equal(t, 0, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://dash.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://DASH.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
