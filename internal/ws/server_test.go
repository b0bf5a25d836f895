package ws

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denkarev/drawconquer/internal/protocol"
	"github.com/denkarev/drawconquer/internal/testutil"
)

// startServer runs srv on a random port and returns the ws:// URL.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ln, addr := testutil.ListenTCP(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return "ws://" + addr
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerDispatchesMessages(t *testing.T) {
	echo := HandlerFunc(func(peer protocol.Peer, remoteAddr string, data []byte) {
		_ = peer.WriteMessage(data)
	})
	url := startServer(t, NewServer("echo", echo))

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestServerHandlesConcurrentConnections(t *testing.T) {
	echo := HandlerFunc(func(peer protocol.Peer, remoteAddr string, data []byte) {
		_ = peer.WriteMessage(data)
	})
	url := startServer(t, NewServer("echo", echo))

	first := dial(t, url)
	second := dial(t, url)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte("one")))
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("two")))

	_, msg, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "two", string(msg))

	_, msg, err = first.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "one", string(msg))
}

func TestServerRejectsPlainHTTP(t *testing.T) {
	handler := HandlerFunc(func(protocol.Peer, string, []byte) {})
	url := startServer(t, NewServer("test", handler))

	conn, err := net.Dial("tcp", url[len("ws://"):])
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerSurvivesPanickingHandler(t *testing.T) {
	boom := HandlerFunc(func(peer protocol.Peer, remoteAddr string, data []byte) {
		if string(data) == "boom" {
			panic("handler blew up")
		}
		_ = peer.WriteMessage(data)
	})
	url := startServer(t, NewServer("test", boom))

	victim := dial(t, url)
	require.NoError(t, victim.WriteMessage(websocket.TextMessage, []byte("boom")))

	// The panicking connection dies...
	victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := victim.ReadMessage()
	require.Error(t, err)

	// ...but the server keeps accepting and serving.
	survivor := dial(t, url)
	require.NoError(t, survivor.WriteMessage(websocket.TextMessage, []byte("still here")))
	_, msg, err := survivor.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "still here", string(msg))
}

func TestServerStopsOnContextCancel(t *testing.T) {
	handler := HandlerFunc(func(protocol.Peer, string, []byte) {})
	srv := NewServer("test", handler)

	ctx, cancel := context.WithCancel(context.Background())
	ln, addr := testutil.ListenTCP(t)

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	conn := dial(t, "ws://"+addr)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}

	// The open connection was torn down too.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
