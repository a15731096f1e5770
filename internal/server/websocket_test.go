package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOrigin(t *testing.T) {
	s := setupTestServer(t)

	testCases := []struct {
		name    string
		host    string
		origin  string
		allowed bool
	}{
		{"same host", "example.test:9000", "http://example.test:9000", true},
		{"configured address", "other", "http://localhost:8080", true},
		{"loopback", "other", "https://127.0.0.1:8080", true},
		{"no origin", "localhost:8080", "", false},
		{"foreign origin", "localhost:8080", "http://evil.test", false},
		{"bad scheme", "localhost:8080", "file://localhost:8080", false},
		{"unparsable", "localhost:8080", "http://[::1", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tc.host
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			_, ok := s.checkOrigin(req)
			assert.Equal(t, tc.allowed, ok)
		})
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.test")
	w := serve(s, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// dialPreview starts a hub and connects a page to it.
func dialPreview(t *testing.T, s *PreviewServer) (context.Context, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.runWebSocketHub(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+strings.TrimPrefix(ts.URL, "http://")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return ctx, conn
}

func readUpdate(t *testing.T, ctx context.Context, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(readCtx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketReceivesReload(t *testing.T) {
	s := setupTestServer(t)
	ctx, conn := dialPreview(t, s)

	hello := readUpdate(t, ctx, conn)
	assert.Equal(t, MessageHello, hello.Type)
	assert.Equal(t, 0, hello.Version)
	assert.Equal(t, 1, s.ClientCount())

	s.Publish(ctx, testResult("(function(){})()"))

	msg := readUpdate(t, ctx, conn)
	assert.Equal(t, MessageReload, msg.Type)
	assert.Equal(t, 1, msg.Version)

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketGreetsWithCurrentVersion(t *testing.T) {
	s := setupTestServer(t)
	s.Publish(context.Background(), testResult("a"))
	s.Publish(context.Background(), testResult("b"))
	// Drain the queued reloads so the hub starts from an empty queue.
	<-s.broadcast
	<-s.broadcast

	ctx, conn := dialPreview(t, s)
	hello := readUpdate(t, ctx, conn)
	assert.Equal(t, MessageHello, hello.Type)
	assert.Equal(t, 2, hello.Version)
}

func TestWebSocketHubStopsRegistering(t *testing.T) {
	s := setupTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go s.runWebSocketHub(ctx)
	cancel()

	select {
	case <-s.hubDone:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
}
