package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState map[string]int

func (f fakeState) RoomSizes() map[string]int { return f }

type fakeFailures int

func (f fakeFailures) ConsecutiveFailures() int { return int(f) }

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.CommandHandled("add", "ok")
	m.CommandHandled("add", "ok")
	m.SnapshotSaved(nil)
	m.SnapshotSaved(errors.New("disk"))
	m.SnapshotLoaded(nil)
	m.TransportFailed("network_error")
	m.SyncSucceeded()

	assert.InDelta(t, 2, testutil.ToFloat64(m.commands.WithLabelValues("add", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.snapshotSaves.WithLabelValues(ResultError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.snapshotLoads.WithLabelValues(ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.transportFailures.WithLabelValues("network_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.syncs), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CommandHandled("add", "ok")
		m.SnapshotSaved(nil)
		m.SnapshotLoaded(nil)
		m.TransportFailed("x")
		m.SyncSucceeded()
		require.NoError(t, m.Register())
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStateCollector(t *testing.T) {
	m := New()
	require.NoError(t, m.Register(NewStateCollector(fakeState{"!a": 2, "!b": 3}, fakeFailures(1))))

	expected := `
# HELP asmith_rooms Rooms holding a task list.
# TYPE asmith_rooms gauge
asmith_rooms 2
# HELP asmith_tasks Open tasks across all rooms.
# TYPE asmith_tasks gauge
asmith_tasks 5
# HELP asmith_transport_consecutive_failures Current consecutive transport failures.
# TYPE asmith_transport_consecutive_failures gauge
asmith_transport_consecutive_failures 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"asmith_rooms", "asmith_tasks", "asmith_transport_consecutive_failures"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "asmith_tasks 5")
}
