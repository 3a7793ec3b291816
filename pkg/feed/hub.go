// pkg/feed/hub.go

// Package feed streams fleet snapshots to websocket clients. Every client has
// its own circuit breaker so one slow or broken viewer is dropped without
// holding up the others.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-lakefleet/pkg/config"
	"github.com/opd-ai/go-lakefleet/pkg/engine"
	"github.com/opd-ai/go-lakefleet/pkg/logging"
)

// Format selects the frame encoding of a client
type Format string

const (
	// FormatJSON sends text frames with the snapshot as JSON
	FormatJSON Format = "json"
	// FormatProto sends binary frames in protobuf wire format
	FormatProto Format = "proto"
)

// ErrUnknownFormat is returned for a format query other than json or proto
var ErrUnknownFormat = errors.New("unknown feed format")

// ParseFormat maps a query value to a Format. An empty value means JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatProto:
		return FormatProto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
}

// SnapshotFunc returns the snapshot sent to a client when it connects
type SnapshotFunc func() *engine.Snapshot

type client struct {
	id      string
	conn    *websocket.Conn
	format  Format
	breaker *gobreaker.CircuitBreaker
}

// Hub tracks connected clients and fans snapshots out to them
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	upgrader     websocket.Upgrader
	breakerCfg   config.CircuitBreakerConfig
	writeTimeout time.Duration
	logger       *logging.Logger
}

// NewHub creates a hub. writeTimeout bounds every frame write.
func NewHub(breakerCfg config.CircuitBreakerConfig, writeTimeout time.Duration, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		breakerCfg:   breakerCfg,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "feed"),
	}
}

func (h *Hub) newBreaker(id string) *gobreaker.CircuitBreaker {
	cfg := h.breakerCfg
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "feed-" + id,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Std(),
		Timeout:     cfg.Timeout.Std(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Handler upgrades the request to a websocket and streams frames to it until
// the client goes away. The format comes from the "format" query parameter.
func (h *Hub) Handler(current SnapshotFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
			return
		}

		id := logging.GenerateCorrelationID()
		c := &client{id: id, conn: conn, format: format, breaker: h.newBreaker(id)}
		h.add(c)
		defer h.remove(c)

		ctx := logging.WithCorrelationID(r.Context(), id)
		h.logger.Info(ctx, "feed client connected", "format", string(format), "remote", r.RemoteAddr)

		if current != nil {
			if snap := current(); snap != nil {
				h.sendTo(c, snap)
			}
		}

		// Incoming frames are discarded; the read only notices the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.logger.Debug(ctx, "feed client gone", "error", err.Error())
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// frames encodes a snapshot lazily, at most once per format.
type frames struct {
	snap  *engine.Snapshot
	json  []byte
	proto []byte
	err   error
}

func (f *frames) get(format Format) (int, []byte, error) {
	if format == FormatProto {
		if f.proto == nil {
			f.proto = EncodeSnapshot(f.snap)
		}
		return websocket.BinaryMessage, f.proto, nil
	}
	if f.json == nil && f.err == nil {
		f.json, f.err = json.Marshal(f.snap)
	}
	return websocket.TextMessage, f.json, f.err
}

// Broadcast sends the snapshot to every client and returns how many received
// it. Clients whose breaker opens are disconnected.
func (h *Hub) Broadcast(snap *engine.Snapshot) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	enc := &frames{snap: snap}
	delivered := 0
	for c := range h.clients {
		if h.write(c, enc) == nil {
			delivered++
			continue
		}
		if c.breaker.State() == gobreaker.StateOpen {
			h.logger.Warn(context.Background(), "dropping feed client", "client", c.id)
			delete(h.clients, c)
			c.conn.Close()
		}
	}
	return delivered
}

func (h *Hub) sendTo(c *client, snap *engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.write(c, &frames{snap: snap})
	}
}

// write sends one frame through the client's breaker. Callers hold h.mu,
// which also serializes writes on each connection.
func (h *Hub) write(c *client, enc *frames) error {
	messageType, payload, err := enc.get(c.format)
	if err != nil {
		return logging.WrapError(err, "encode snapshot")
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		if h.writeTimeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		}
		return nil, c.conn.WriteMessage(messageType, payload)
	})
	return err
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
}
