package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-lakefleet/pkg/config"
	"github.com/opd-ai/go-lakefleet/pkg/engine"
)

func testHub() *Hub {
	cb := config.DefaultConfig().CircuitBreaker
	cb.MaxConsecutiveFails = 1
	return NewHub(cb, time.Second, nil)
}

func startFeed(t *testing.T, hub *Hub, current SnapshotFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(hub.Handler(current))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return messageType, data
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		value   string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"proto", FormatProto, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseFormat(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHub_JSONClient(t *testing.T) {
	hub := testHub()
	initial := sampleSnapshot()
	server := startFeed(t, hub, func() *engine.Snapshot { return initial })

	conn := dial(t, server, "")

	messageType, data := readFrame(t, conn)
	assert.Equal(t, websocket.TextMessage, messageType)
	var first engine.Snapshot
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, initial.Tick, first.Tick)
	assert.Len(t, first.Agents, 2)

	next := sampleSnapshot()
	next.Tick = 1240
	assert.Equal(t, 1, hub.Broadcast(next))

	_, data = readFrame(t, conn)
	var second engine.Snapshot
	require.NoError(t, json.Unmarshal(data, &second))
	assert.Equal(t, uint64(1240), second.Tick)
}

func TestHub_ProtoClient(t *testing.T) {
	hub := testHub()
	server := startFeed(t, hub, nil)

	conn := dial(t, server, "?format=proto")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, hub.Broadcast(sampleSnapshot()))

	messageType, data := readFrame(t, conn)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestHub_UnknownFormatRejected(t *testing.T) {
	server := startFeed(t, testHub(), nil)

	resp, err := http.Get(server.URL + "?format=xml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := testHub()
	server := startFeed(t, hub, nil)

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BrokenClientIsDropped(t *testing.T) {
	hub := testHub()
	server := startFeed(t, hub, nil)

	healthy := dial(t, server, "?format=json")
	dial(t, server, "?format=proto")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	// Break the proto client's server-side connection.
	hub.mu.Lock()
	for c := range hub.clients {
		if c.format == FormatProto {
			c.conn.Close()
		}
	}
	hub.mu.Unlock()

	assert.Equal(t, 1, hub.Broadcast(sampleSnapshot()))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	messageType, _ := readFrame(t, healthy)
	assert.Equal(t, websocket.TextMessage, messageType)
}
