package notify

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

// dialPair returns the server side and client side of one websocket.
func dialPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server := <-serverConns:
		t.Cleanup(func() { _ = server.Close() })
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("websocket upgrade did not complete")
		return nil, nil
	}
}

func TestWSSessionForward(t *testing.T) {
	server, client := dialPair(t)
	reg := NewWSRegistry()
	sess := reg.Add("u1", server)
	assert.Equal(t, 1, reg.Len())

	notes := make(chan Notification, 2)
	notes <- Notification{ID: "n1", Type: TripAccepted}
	notes <- Notification{ID: "n2", Type: Message}
	close(notes)
	require.NoError(t, sess.Forward(notes))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"n1", "n2"} {
		var got Notification
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, want, got.ID)
	}

	reg.Remove("u1", server)
	assert.Zero(t, reg.Len())
}

func TestWSSessionWriteTimesOutOnStalledClient(t *testing.T) {
	server, _ := dialPair(t)
	reg := &WSRegistry{WriteTimeout: 50 * time.Millisecond, sessions: make(map[string]*WSSession)}
	sess := reg.Add("u1", server)

	// the client never reads, so socket buffers fill and a write blocks
	payload := Notification{ID: "big", Message: strings.Repeat("x", 256<<10)}
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 2000; i++ {
			if err := sess.Send(payload); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("write to a stalled client did not time out")
	}
}

func TestWSRegistryReplaceClosesPrevious(t *testing.T) {
	first, firstClient := dialPair(t)
	second, _ := dialPair(t)
	reg := NewWSRegistry()
	reg.Add("u1", first)
	reg.Add("u1", second)
	assert.Equal(t, 1, reg.Len())

	// the replaced session's connection is closed, so its peer sees EOF
	require.NoError(t, firstClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := firstClient.ReadMessage()
	assert.Error(t, err)

	// a stale Remove leaves the newer session in place
	reg.Remove("u1", first)
	assert.Equal(t, 1, reg.Len())
}
