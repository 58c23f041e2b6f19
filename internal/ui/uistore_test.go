package ui

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUIStore_AddEventAndSnapshotIsolation(t *testing.T) {
	s := NewUIStore()
	s.AddEvent("task1", "Medical Diagnostician", "task_started", "hello", "")
	s.AddEvent("task1", "Treatment Advisor", "task_completed", "world", "5ms")

	snap := s.snapshot()
	if len(snap["task1"]) != 2 {
		t.Fatalf("expected 2 events, got %d", len(snap["task1"]))
	}

	// mutate snapshot and verify original store is not affected
	snap["task1"][0].Message = "hacked"
	again := s.snapshot()
	if again["task1"][0].Message == "hacked" {
		t.Fatalf("store should not reflect mutations to snapshot copy")
	}
}

func TestUIStore_EvictsOldestTimeline(t *testing.T) {
	s := NewUIStore()
	s.maxTasks = 3
	for i := 0; i < 5; i++ {
		s.AddEvent(fmt.Sprintf("t%d", i), "a", "k", "m", "")
	}
	_, ok := s.Events("t0")
	require.False(t, ok)
	_, ok = s.Events("t1")
	require.False(t, ok)
	evs, ok := s.Events("t4")
	require.True(t, ok)
	require.Len(t, evs, 1)
}

func TestHandleIndex_OK_RendersAndOrdersByLastEvent(t *testing.T) {
	s := NewUIStore()
	s.AddEvent("taskA", "agent", "info", "msgA1", "1ms")
	time.Sleep(5 * time.Millisecond)
	s.AddEvent("taskB", "agent", "info", "msgB1", "1ms")

	rr := httptest.NewRecorder()
	s.HandleIndex(rr, httptest.NewRequest(http.MethodGet, "/ui", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "taskA")
	require.Contains(t, body, "taskB")
	if strings.Index(body, "taskB") > strings.Index(body, "taskA") {
		t.Fatalf("expected taskB to appear before taskA: body=\n%s", body)
	}
}

func TestHandleTask_MissingID_Redirects(t *testing.T) {
	s := NewUIStore()
	rr := httptest.NewRecorder()
	s.HandleTask(rr, httptest.NewRequest(http.MethodGet, "/ui/task", nil))
	require.Equal(t, http.StatusFound, rr.Code)
}

func TestHandleTask_NotFound(t *testing.T) {
	s := NewUIStore()
	rr := httptest.NewRecorder()
	s.HandleTask(rr, httptest.NewRequest(http.MethodGet, "/ui/task?id=unknown", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleTask_OK(t *testing.T) {
	s := NewUIStore()
	s.AddEvent("taskX", "agent1", "info", "first", "1ms")
	time.Sleep(2 * time.Millisecond)
	s.AddEvent("taskX", "agent2", "info", "<b>second</b>", "2ms")

	rr := httptest.NewRecorder()
	q := url.Values{"id": {"taskX"}}
	s.HandleTask(rr, httptest.NewRequest(http.MethodGet, "/ui/task?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "first")
	require.Contains(t, body, "&lt;b&gt;second&lt;/b&gt;")
	require.Less(t, strings.Index(body, "first"), strings.Index(body, "second"))
}
