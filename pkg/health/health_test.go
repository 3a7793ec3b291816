package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fleetState stands in for the fleet and listener the checks observe.
type fleetState struct {
	running  bool
	lastTick time.Time
	addr     string
	heapMB   int64
}

var checkTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func healthyState() *fleetState {
	return &fleetState{
		running:  true,
		lastTick: checkTime.Add(-100 * time.Millisecond),
		addr:     "127.0.0.1:8080",
		heapMB:   40,
	}
}

// newFleetChecker registers the checks the run command wires up.
func newFleetChecker(state *fleetState) *HealthChecker {
	progress := NewTickProgressHealthCheck(func() time.Time { return state.lastTick }, 5*time.Second)
	progress.now = func() time.Time { return checkTime }

	checker := NewHealthChecker()
	checker.AddCheck(NewSimulationHealthCheck(func() bool { return state.running }))
	checker.AddCheck(progress)
	checker.AddCheck(NewMemoryHealthCheck(512, func() int64 { return state.heapMB }))
	checker.AddCheck(NewListenerHealthCheck(func() string { return state.addr }))
	return checker
}

func ready(t *testing.T, checker *HealthChecker) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	checker.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

func TestReadiness_FleetStates(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(s *fleetState)
		failing   string
		inMessage string
	}{
		{"healthy", func(s *fleetState) {}, "", ""},
		{"fleet stopped", func(s *fleetState) { s.running = false }, "simulation", "not running"},
		{"tick loop stalled", func(s *fleetState) { s.lastTick = checkTime.Add(-6 * time.Second) }, "tick_progress", "exceeds 5s"},
		{"tick at threshold", func(s *fleetState) { s.lastTick = checkTime.Add(-5 * time.Second) }, "", ""},
		{"never ticked", func(s *fleetState) { s.lastTick = time.Time{} }, "tick_progress", "no tick"},
		{"listener unbound", func(s *fleetState) { s.addr = "" }, "listener", "not active"},
		{"heap over limit", func(s *fleetState) { s.heapMB = 513 }, "memory", "513MB exceeds limit 512MB"},
		{"heap at limit", func(s *fleetState) { s.heapMB = 512 }, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := healthyState()
			tt.mutate(state)

			code, status := ready(t, newFleetChecker(state))

			require.Len(t, status.Checks, 4)
			if tt.failing == "" {
				assert.Equal(t, http.StatusOK, code)
				assert.Equal(t, statusHealthy, status.Status)
				return
			}

			assert.Equal(t, http.StatusServiceUnavailable, code)
			assert.Equal(t, statusUnhealthy, status.Status)
			for name, component := range status.Checks {
				if name == tt.failing {
					assert.Equal(t, statusUnhealthy, component.Status)
					assert.Contains(t, component.Message, tt.inMessage)
					continue
				}
				assert.Equal(t, statusHealthy, component.Status, name)
				assert.Empty(t, component.Message, name)
			}
		})
	}
}

func TestLiveness_IgnoresFleetState(t *testing.T) {
	state := healthyState()
	state.running = false
	state.addr = ""

	w := httptest.NewRecorder()
	newFleetChecker(state).LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
}

func TestHealthChecker_ReplaceAndRemove(t *testing.T) {
	state := healthyState()
	state.running = false
	checker := newFleetChecker(state)

	// A check registered under an existing name replaces it.
	checker.AddCheck(NewSimulationHealthCheck(func() bool { return true }))
	status := checker.CheckHealth(context.Background())
	assert.Equal(t, statusHealthy, status.Status)
	assert.Len(t, status.Checks, 4)

	checker.RemoveCheck("listener")
	checker.RemoveCheck("absent")
	status = checker.CheckHealth(context.Background())
	assert.NotContains(t, status.Checks, "listener")
	assert.Len(t, status.Checks, 3)
}

func TestCheckNames(t *testing.T) {
	state := healthyState()
	checks := []HealthCheck{
		NewSimulationHealthCheck(func() bool { return state.running }),
		NewTickProgressHealthCheck(func() time.Time { return state.lastTick }, time.Second),
		NewMemoryHealthCheck(1, nil),
		NewListenerHealthCheck(func() string { return state.addr }),
	}

	var names []string
	for _, c := range checks {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"simulation", "tick_progress", "memory", "listener"}, names)
}

func TestMemoryHealthCheck_RuntimeHeap(t *testing.T) {
	heap := HeapInUseMB()
	assert.GreaterOrEqual(t, heap, int64(0))

	assert.NoError(t, NewMemoryHealthCheck(heap+1024, nil).Check(context.Background()))
	assert.Error(t, NewMemoryHealthCheck(-1, nil).Check(context.Background()))
}
