package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/lendcore/agentd/domain"
)

// runSignals carries the asynchronous pause/cancel requests for one run.
// Signals are set by the control surface and observed by the owning worker at
// loop boundaries.
type runSignals struct {
	mu            sync.Mutex
	pause         bool
	cancel        bool
	cancelHandled bool
}

func (s *runSignals) requestPause() {
	s.mu.Lock()
	s.pause = true
	s.mu.Unlock()
}

func (s *runSignals) clearPause() {
	s.mu.Lock()
	s.pause = false
	s.mu.Unlock()
}

func (s *runSignals) requestCancel() {
	s.mu.Lock()
	s.cancel = true
	s.mu.Unlock()
}

func (s *runSignals) pauseRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause
}

func (s *runSignals) cancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

// claimCancel reports whether the caller won the right to finalize a pending
// cancel. At most one caller ever wins for a given signal, so a worker parking
// a run and a concurrent Cancel cannot both finalize it.
func (s *runSignals) claimCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancel || s.cancelHandled {
		return false
	}
	s.cancelHandled = true
	return true
}

// activeRun is one registry entry: a run currently owned by a worker.
type activeRun struct {
	runID     string
	agentID   string
	startedAt time.Time

	mu        sync.Mutex
	turnCount int
}

func (a *activeRun) setTurnCount(n int) {
	a.mu.Lock()
	a.turnCount = n
	a.mu.Unlock()
}

func (a *activeRun) summary() domain.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.RunSummary{
		RunID:     a.runID,
		AgentID:   a.agentID,
		Status:    domain.RunStatusRunning,
		TurnCount: a.turnCount,
		StartedAt: a.startedAt,
	}
}

// Registry is the concurrent index of runs currently owned by workers. It is
// owned by the engine instance; the control surface reads it without locking
// any worker.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*activeRun
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*activeRun)}
}

// Claim inserts an entry for runID and reports whether the claim succeeded.
// A false return means another worker already owns the run.
func (r *Registry) Claim(runID, agentID string) (*activeRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[runID]; exists {
		return nil, false
	}
	entry := &activeRun{
		runID:     runID,
		agentID:   agentID,
		startedAt: time.Now(),
	}
	r.runs[runID] = entry
	return entry, true
}

// Release removes the entry for runID.
func (r *Registry) Release(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

// Owned reports whether runID is currently owned by a worker.
func (r *Registry) Owned(runID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runs[runID]
	return ok
}

// Summaries returns a snapshot of all active runs sorted by start time.
func (r *Registry) Summaries() []domain.RunSummary {
	r.mu.RLock()
	entries := make([]*activeRun, 0, len(r.runs))
	for _, entry := range r.runs {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	summaries := make([]domain.RunSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, entry.summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.Before(summaries[j].StartedAt)
	})
	return summaries
}

// Len returns the number of active runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
