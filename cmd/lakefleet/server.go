// cmd/lakefleet/server.go
package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opd-ai/go-lakefleet/pkg/engine"
	"github.com/opd-ai/go-lakefleet/pkg/feed"
	"github.com/opd-ai/go-lakefleet/pkg/health"
)

// newRouter wires the HTTP surface. Snapshot and feed requests pass through
// limiter when it is non-nil; health endpoints are never limited.
func newRouter(fleet *engine.Fleet, hub *feed.Hub, checker *health.HealthChecker, limiter *feed.Limiter) *mux.Router {
	limit := func(h http.Handler) http.Handler {
		if limiter == nil {
			return h
		}
		return limiter.Middleware(h)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", checker.LivenessHandler).Methods("GET")
	router.HandleFunc("/ready", checker.ReadinessHandler).Methods("GET")
	router.Handle("/snapshot", limit(snapshotHandler(fleet))).Methods("GET")
	router.Handle("/ws/feed", limit(hub.Handler(fleet.Snapshot))).Methods("GET")
	return router
}

// snapshotHandler serves the current fleet snapshot as JSON, or in the binary
// feed encoding with ?format=proto.
func snapshotHandler(fleet *engine.Fleet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := feed.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap := fleet.Snapshot()
		if format == feed.FormatProto {
			w.Header().Set("Content-Type", "application/x-protobuf")
			w.WriteHeader(http.StatusOK)
			w.Write(feed.EncodeSnapshot(snap))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(snap)
	}
}
