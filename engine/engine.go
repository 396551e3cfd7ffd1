// Package engine executes agent runs: a bounded queue feeds a fixed worker
// pool, each worker driving one run at a time through the turn loop.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/config"
	"github.com/lendcore/agentd/domain"
	"github.com/lendcore/agentd/policy"
	"github.com/lendcore/agentd/store"
	"github.com/lendcore/agentd/tools"
)

// Notifier receives run progress events for fan-out to watchers. Callers
// never block the worker path; implementations must drop rather than stall.
type Notifier interface {
	Publish(runID string, event map[string]interface{})
}

// Engine owns the execution queue, the worker pool and the active-run
// registry. All state is instance-scoped; nothing is process-global.
type Engine struct {
	store        store.Store
	chatClient   chat.Client
	toolProvider tools.Provider
	policyEngine *policy.Engine
	notifier     Notifier
	config       *config.Config

	registry   *Registry
	agentCache *lru.Cache[string, *domain.Agent]

	mu      sync.Mutex
	queue   chan string
	signals map[string]*runSignals
	started bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates an engine. The notifier and policy engine may be nil.
func New(st store.Store, chatClient chat.Client, toolProvider tools.Provider, policyEngine *policy.Engine, notifier Notifier, cfg *config.Config) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if chatClient == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if toolProvider == nil {
		return nil, fmt.Errorf("tool provider is required")
	}

	cacheSize := cfg.AgentCacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	agentCache, err := lru.New[string, *domain.Agent](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent cache: %w", err)
	}

	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 64
	}

	return &Engine{
		store:        st,
		chatClient:   chatClient,
		toolProvider: toolProvider,
		policyEngine: policyEngine,
		notifier:     notifier,
		config:       cfg,
		registry:     NewRegistry(),
		agentCache:   agentCache,
		queue:        make(chan string, capacity),
		signals:      make(map[string]*runSignals),
	}, nil
}

// Start launches the worker pool.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine already started")
	}

	workers := e.config.WorkerCount
	if workers <= 0 {
		workers = 4
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < workers; i++ {
		workerID := i
		group.Go(func() error {
			e.workerLoop(groupCtx, workerID)
			return nil
		})
	}

	e.cancel = cancel
	e.group = group
	e.started = true
	log.Printf("INFO: engine started with %d workers (queue capacity %d)", workers, cap(e.queue))
	return nil
}

// Stop signals the workers and waits for them to drain. In-flight runs
// observe the shutdown at their next suspension point.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	group := e.group
	e.mu.Unlock()

	cancel()
	err := group.Wait()
	log.Printf("INFO: engine stopped")
	return err
}

// Enqueue validates inputs, creates a run in PENDING and places it on the
// queue. A full queue fails fast with domain.ErrQueueFull and the run is
// never created.
func (e *Engine) Enqueue(ctx context.Context, agentID string, inputValues map[string]string) (string, error) {
	agent, err := e.getAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	if err := validateInputs(agent, inputValues); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) >= cap(e.queue) {
		return "", domain.ErrQueueFull
	}

	runID := "run_" + uuid.New().String()[:8]
	now := time.Now()
	run := &domain.AgentRun{
		RunID:       runID,
		AgentID:     agent.AgentID,
		OwnerID:     agent.OwnerID,
		Status:      domain.RunStatusPending,
		MaxTurns:    agent.MaxTurns,
		Goal:        agent.Goal,
		InputValues: inputValues,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	e.signals[runID] = &runSignals{}
	// Cannot block: capacity was checked under the same lock and workers
	// only drain the channel.
	e.queue <- runID

	e.publish(runID, map[string]interface{}{
		"type":     "run_enqueued",
		"ts":       now.UnixMilli(),
		"run_id":   runID,
		"agent_id": agent.AgentID,
	})
	return runID, nil
}

// Pause requests suspension of a run at its next turn boundary. Idempotent;
// fails with InvalidStateError on terminal runs.
func (e *Engine) Pause(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return &domain.NotFoundError{Kind: "run", ID: runID}
	}
	if run.Status.IsTerminal() {
		return &domain.InvalidStateError{RunID: runID, Status: run.Status, Op: "pause"}
	}
	if run.Status == domain.RunStatusPaused || run.Status == domain.RunStatusCancelling {
		return nil
	}

	if sig := e.signal(runID); sig != nil {
		sig.requestPause()
	}
	return nil
}

// Resume re-enqueues a paused run at the same turn number. A pause that has
// not been observed yet is simply withdrawn.
func (e *Engine) Resume(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return &domain.NotFoundError{Kind: "run", ID: runID}
	}
	if run.Status.IsTerminal() {
		return &domain.InvalidStateError{RunID: runID, Status: run.Status, Op: "resume"}
	}

	sig := e.signal(runID)
	if sig != nil {
		sig.clearPause()
	}
	if run.Status != domain.RunStatusPaused {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registry.Owned(runID) {
		// The owning worker has not parked the run yet; the cleared
		// pause flag lets it continue in place.
		return nil
	}
	if len(e.queue) >= cap(e.queue) {
		return domain.ErrQueueFull
	}
	if e.signals[runID] == nil {
		e.signals[runID] = &runSignals{}
	}
	e.queue <- runID

	e.publish(runID, map[string]interface{}{
		"type":   "run_resumed",
		"ts":     time.Now().UnixMilli(),
		"run_id": runID,
	})
	return nil
}

// Cancel requests cancellation. The signal takes effect within one loop
// iteration for running runs; pending and paused runs finalize without
// executing further turns.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return &domain.NotFoundError{Kind: "run", ID: runID}
	}
	if run.Status.IsTerminal() {
		return &domain.InvalidStateError{RunID: runID, Status: run.Status, Op: "cancel"}
	}
	if run.Status == domain.RunStatusCancelling {
		return nil
	}

	sig := e.ensureSignal(runID)
	sig.requestCancel()
	e.logRun(ctx, runID, domain.LogLevelInfo, "cancellation requested")

	// Re-read after setting the flag: the owning worker may have parked
	// the run between the first read and the flag write, and a parked run
	// has no owner left to observe the signal.
	run, err = e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil || run.Status.IsTerminal() {
		// The owning worker finalized the run concurrently.
		return nil
	}

	switch run.Status {
	case domain.RunStatusPending:
		// No worker owns a queued run yet; mark it so the claiming
		// worker finalizes without executing.
		run.Status = domain.RunStatusCancelling
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
	case domain.RunStatusPaused:
		if sig.claimCancel() {
			run.Status = domain.RunStatusCancelling
			return e.finalizeRun(ctx, run, domain.RunStatusCancelled, nil)
		}
	}
	// RUNNING runs keep their status until the owning worker observes the
	// signal at the next loop or tool-call boundary.
	return nil
}

// ListActive returns a snapshot of runs currently owned by workers.
func (e *Engine) ListActive() []domain.RunSummary {
	return e.registry.Summaries()
}

// QueueDepth returns the number of queued, unclaimed runs.
func (e *Engine) QueueDepth() int {
	return len(e.queue)
}

func (e *Engine) signal(runID string) *runSignals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals[runID]
}

func (e *Engine) ensureSignal(runID string) *runSignals {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signals[runID] == nil {
		e.signals[runID] = &runSignals{}
	}
	return e.signals[runID]
}

func (e *Engine) dropSignal(runID string) {
	e.mu.Lock()
	delete(e.signals, runID)
	e.mu.Unlock()
}

// getAgent reads an agent through the LRU cache.
func (e *Engine) getAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	if agent, ok := e.agentCache.Get(agentID); ok {
		return agent, nil
	}
	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return nil, &domain.NotFoundError{Kind: "agent", ID: agentID}
	}
	e.agentCache.Add(agentID, agent)
	return agent, nil
}

// InvalidateAgent evicts an agent from the config cache after an update.
func (e *Engine) InvalidateAgent(agentID string) {
	e.agentCache.Remove(agentID)
}

func (e *Engine) publish(runID string, event map[string]interface{}) {
	if e.notifier != nil {
		e.notifier.Publish(runID, event)
	}
}

// logRun appends a diagnostic entry to the run and mirrors it to the process
// log.
func (e *Engine) logRun(ctx context.Context, runID, level, message string) {
	log.Printf("%s: run %s: %s", level, runID, message)
	if err := e.store.AppendLog(ctx, runID, domain.LogEntry{
		Ts:      time.Now(),
		Level:   level,
		Message: message,
	}); err != nil {
		log.Printf("WARN: failed to append run log: %v", err)
	}
}
