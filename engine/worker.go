package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lendcore/agentd/domain"
)

// workerLoop drains the queue until the engine context is cancelled. Each
// worker owns at most one run at a time.
func (e *Engine) workerLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case runID := <-e.queue:
			e.executeRun(ctx, workerID, runID)
		}
	}
}

// executeRun claims one dequeued run and drives it to a terminal or
// suspended state.
func (e *Engine) executeRun(ctx context.Context, workerID int, runID string) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: worker %d: failed to load run %s: %v", workerID, runID, err)
		return
	}
	if run == nil {
		log.Printf("ERROR: worker %d: dequeued unknown run %s", workerID, runID)
		return
	}

	sig := e.signal(runID)
	if sig == nil {
		sig = &runSignals{}
	}

	// A cancel that landed before the claim finalizes the run without it
	// ever reaching RUNNING.
	if run.Status == domain.RunStatusCancelling || sig.claimCancel() {
		if run.Status != domain.RunStatusCancelling {
			run.Status = domain.RunStatusCancelling
		}
		e.logRun(ctx, runID, domain.LogLevelInfo, "run cancelled before execution started")
		if err := e.finalizeRun(ctx, run, domain.RunStatusCancelled, nil); err != nil {
			log.Printf("ERROR: worker %d: failed to finalize run %s: %v", workerID, runID, err)
		}
		return
	}

	agent, err := e.getAgent(ctx, run.AgentID)
	if err != nil {
		e.logRun(ctx, runID, domain.LogLevelError, fmt.Sprintf("agent configuration unavailable: %v", err))
		errData, _ := json.Marshal(map[string]string{"code": "configuration_error", "message": err.Error()})
		// The run passes through RUNNING in the store before failing.
		run.Status = domain.RunStatusRunning
		now := time.Now()
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
		if uerr := e.store.UpdateRun(ctx, run); uerr != nil {
			log.Printf("ERROR: worker %d: failed to mark run %s running: %v", workerID, runID, uerr)
			return
		}
		if finErr := e.finalizeRun(ctx, run, domain.RunStatusFailed, errData); finErr != nil {
			log.Printf("ERROR: worker %d: failed to finalize run %s: %v", workerID, runID, finErr)
		}
		return
	}

	// Registry insert is the test-and-set half of the claim: exactly one
	// worker may own a run.
	entry, ok := e.registry.Claim(runID, run.AgentID)
	if !ok {
		log.Printf("ERROR: worker %d: run %s is already owned by another worker", workerID, runID)
		return
	}
	defer e.registry.Release(runID)

	if err := domain.ValidateTransition(run.Status, domain.RunStatusRunning); err != nil {
		log.Printf("ERROR: worker %d: run %s: %v", workerID, runID, err)
		return
	}
	run.Status = domain.RunStatusRunning
	now := time.Now()
	if run.StartedAt == nil {
		run.StartedAt = &now
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		log.Printf("ERROR: worker %d: failed to mark run %s running: %v", workerID, runID, err)
		return
	}
	entry.setTurnCount(run.TurnCount)
	e.publish(runID, map[string]interface{}{
		"type":     "run_started",
		"ts":       now.UnixMilli(),
		"run_id":   runID,
		"agent_id": run.AgentID,
		"turn":     run.TurnCount,
	})

	runCtx := ctx
	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	outcome := e.runLoop(runCtx, agent, run, sig, entry)
	if err := e.finalizeRun(ctx, run, outcome.status, outcome.errData); err != nil {
		log.Printf("ERROR: worker %d: failed to finalize run %s: %v", workerID, runID, err)
		return
	}

	// A cancel that raced the park would otherwise sit unobserved: the
	// parked run has no owner to notice it. The claim is exclusive with
	// Cancel's own parked-run finalize.
	if outcome.status == domain.RunStatusPaused && sig.claimCancel() {
		run.Status = domain.RunStatusCancelling
		e.logRun(ctx, runID, domain.LogLevelInfo, "run cancelled while pausing")
		if err := e.finalizeRun(ctx, run, domain.RunStatusCancelled, nil); err != nil {
			log.Printf("ERROR: worker %d: failed to finalize run %s: %v", workerID, runID, err)
		}
	}
}

// finalizeRun persists the outcome of one execution leg. Terminal outcomes
// release the run's signal slot; PAUSED keeps it so pending signals survive
// the park.
func (e *Engine) finalizeRun(ctx context.Context, run *domain.AgentRun, status domain.RunStatus, errData json.RawMessage) error {
	if err := domain.ValidateTransition(run.Status, status); err != nil {
		return err
	}
	run.Status = status
	run.Error = errData
	if status.IsTerminal() {
		now := time.Now()
		run.CompletedAt = &now
	}
	// The outcome write must survive engine shutdown or the run would be
	// left RUNNING in the store with no owner.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to persist run outcome: %w", err)
	}
	if status.IsTerminal() {
		e.dropSignal(run.RunID)
	}

	event := map[string]interface{}{
		"ts":     time.Now().UnixMilli(),
		"run_id": run.RunID,
		"turn":   run.TurnCount,
	}
	switch status {
	case domain.RunStatusPaused:
		event["type"] = "run_paused"
	case domain.RunStatusCancelled:
		event["type"] = "run_cancelled"
	case domain.RunStatusCompleted:
		event["type"] = "run_done"
		event["goal_achieved"] = run.GoalAchieved
	case domain.RunStatusFailed:
		event["type"] = "run_failed"
		if errData != nil {
			event["error"] = json.RawMessage(errData)
		}
	default:
		event["type"] = "run_updated"
	}
	e.publish(run.RunID, event)
	return nil
}
