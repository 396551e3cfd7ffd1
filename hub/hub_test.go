package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Close)
	return h
}

func waitForWatchers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.WatcherCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d watchers, have %d", want, h.WatcherCount())
}

func receive(t *testing.T, conn *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-conn.Send:
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHubRoutesEventsByRun(t *testing.T) {
	h := newRunningHub(t)

	watcher1 := h.NewConnection(nil, "run_1")
	watcher2 := h.NewConnection(nil, "run_2")
	h.Register(watcher1)
	h.Register(watcher2)
	waitForWatchers(t, h, 2)

	h.Publish("run_1", map[string]interface{}{"type": "run_started", "run_id": "run_1"})

	event := receive(t, watcher1)
	assert.Equal(t, "run_started", event["type"])
	assert.Equal(t, "run_1", event["run_id"])

	select {
	case data := <-watcher2.Send:
		t.Fatalf("watcher for run_2 received foreign event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubMultipleWatchersSameRun(t *testing.T) {
	h := newRunningHub(t)

	watcher1 := h.NewConnection(nil, "run_1")
	watcher2 := h.NewConnection(nil, "run_1")
	h.Register(watcher1)
	h.Register(watcher2)
	waitForWatchers(t, h, 2)

	h.Publish("run_1", map[string]interface{}{"type": "turn_appended", "turn_no": float64(1)})

	for _, watcher := range []*Connection{watcher1, watcher2} {
		event := receive(t, watcher)
		assert.Equal(t, "turn_appended", event["type"])
	}
}

func TestHubUnregister(t *testing.T) {
	h := newRunningHub(t)

	watcher := h.NewConnection(nil, "run_1")
	h.Register(watcher)
	waitForWatchers(t, h, 1)

	h.Unregister(watcher)
	waitForWatchers(t, h, 0)

	// The send channel is closed on unregister.
	select {
	case _, ok := <-watcher.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected send channel to be closed")
	}

	// Publishing to a run with no watchers must not panic or block.
	h.Publish("run_1", map[string]interface{}{"type": "run_done"})
}
