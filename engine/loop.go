package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/domain"
	"github.com/lendcore/agentd/tools"
)

// loopOutcome is the result of one execution leg of a run.
type loopOutcome struct {
	status  domain.RunStatus
	errData json.RawMessage
}

func failedOutcome(code, message string) loopOutcome {
	errData, _ := json.Marshal(map[string]string{"code": code, "message": message})
	return loopOutcome{status: domain.RunStatusFailed, errData: errData}
}

// runLoop drives one run from its current turn until completion or
// suspension. Pause and cancel are observed at the top of each iteration;
// cancel additionally before every tool invocation. The run's partial
// history is always preserved.
func (e *Engine) runLoop(ctx context.Context, agent *domain.Agent, run *domain.AgentRun, sig *runSignals, entry *activeRun) loopOutcome {
	systemPrompt, err := renderTemplate(agent.PromptTemplate, run.InputValues)
	if err != nil {
		e.logRun(ctx, run.RunID, domain.LogLevelError, err.Error())
		return failedOutcome("configuration_error", err.Error())
	}

	toolDefs := e.declaredTools(ctx, agent)

	for {
		if outcome, stop := e.checkSuspension(ctx, run, sig); stop {
			return outcome
		}

		messages := assembleMessages(systemPrompt, run.Turns)
		completion, err := e.completeWithRetry(ctx, &chat.CompletionRequest{
			Messages: messages,
			Options:  agent.Options,
			Tools:    toolDefs,
		})
		if err != nil {
			if outcome, stop := e.checkSuspension(ctx, run, sig); stop {
				return outcome
			}
			e.logRun(ctx, run.RunID, domain.LogLevelError, fmt.Sprintf("chat model call failed: %v", err))
			return failedOutcome("model_error", err.Error())
		}

		assistant := domain.Turn{
			TurnNo:    run.NextTurnNo(),
			Role:      domain.RoleAssistant,
			Content:   completion.Content,
			CreatedAt: time.Now(),
		}
		if err := e.appendTurn(ctx, run, assistant); err != nil {
			return failedOutcome("storage_error", err.Error())
		}

		for _, req := range completion.ToolCalls {
			// Cancel is also a suspension point before each tool
			// invocation.
			if sig.cancelRequested() {
				run.Status = domain.RunStatusCancelling
				e.logRun(ctx, run.RunID, domain.LogLevelInfo, "run cancelled before tool invocation")
				return loopOutcome{status: domain.RunStatusCancelled}
			}

			toolCall := e.dispatchToolCall(ctx, agent, run, req)
			content := string(toolCall.Result)
			if toolCall.Error != "" {
				content = toolCall.Error
			}
			toolTurn := domain.Turn{
				TurnNo:    run.NextTurnNo(),
				Role:      domain.RoleTool,
				Content:   content,
				ToolCalls: []domain.ToolCall{toolCall},
				CreatedAt: time.Now(),
			}
			if err := e.appendTurn(ctx, run, toolTurn); err != nil {
				return failedOutcome("storage_error", err.Error())
			}
		}

		run.TurnCount++
		entry.setTurnCount(run.TurnCount)
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return failedOutcome("storage_error", err.Error())
		}

		if !agent.MultiTurn {
			// Single-turn agents complete after exactly one pass,
			// regardless of goal text.
			return loopOutcome{status: domain.RunStatusCompleted}
		}

		if run.TurnCount >= run.MaxTurns {
			// The limit is a boundary, not a success signal.
			e.logRun(ctx, run.RunID, domain.LogLevelInfo,
				fmt.Sprintf("max turn limit reached (%d); completing with goal_achieved=%t", run.MaxTurns, run.GoalAchieved))
			return loopOutcome{status: domain.RunStatusCompleted}
		}

		if run.Goal != "" {
			achieved, err := e.evaluateGoal(ctx, agent, run)
			if err != nil {
				// Fail closed: an unanswered evaluation never
				// completes or fails the run.
				e.logRun(ctx, run.RunID, domain.LogLevelWarn, fmt.Sprintf("goal evaluation failed, treating as not achieved: %v", err))
			}
			if achieved {
				run.GoalAchieved = true
				e.logRun(ctx, run.RunID, domain.LogLevelInfo, fmt.Sprintf("goal achieved after %d turn(s)", run.TurnCount))
				return loopOutcome{status: domain.RunStatusCompleted}
			}
		}
	}
}

// checkSuspension inspects the run context and the pause/cancel signals.
// Cancel wins over pause when both are set.
func (e *Engine) checkSuspension(ctx context.Context, run *domain.AgentRun, sig *runSignals) (loopOutcome, bool) {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		e.logRun(ctx, run.RunID, domain.LogLevelError, "run wall-clock timeout exceeded")
		return failedOutcome("run_timeout", "run wall-clock timeout exceeded"), true
	case context.Canceled:
		// Engine shutdown parks the run so a later resume can pick it
		// up where it stopped.
		e.logRun(context.Background(), run.RunID, domain.LogLevelWarn, "engine shutting down, parking run")
		return loopOutcome{status: domain.RunStatusPaused}, true
	}
	if sig.cancelRequested() {
		run.Status = domain.RunStatusCancelling
		e.logRun(ctx, run.RunID, domain.LogLevelInfo, "run cancelled at turn boundary")
		return loopOutcome{status: domain.RunStatusCancelled}, true
	}
	if sig.pauseRequested() {
		sig.clearPause()
		e.logRun(ctx, run.RunID, domain.LogLevelInfo, fmt.Sprintf("run paused at turn %d", run.TurnCount))
		return loopOutcome{status: domain.RunStatusPaused}, true
	}
	return loopOutcome{}, false
}

// assembleMessages builds the model input: rendered system prompt followed by
// the full turn history.
func assembleMessages(systemPrompt string, turns []domain.Turn) []chat.Message {
	messages := make([]chat.Message, 0, len(turns)+1)
	messages = append(messages, chat.Message{Role: string(domain.RoleSystem), Content: systemPrompt})
	for _, turn := range turns {
		msg := chat.Message{Role: string(turn.Role), Content: turn.Content}
		if turn.Role == domain.RoleTool && len(turn.ToolCalls) > 0 {
			msg.ToolCallID = turn.ToolCalls[0].ToolCallID
			msg.Name = turn.ToolCalls[0].ToolName
		}
		messages = append(messages, msg)
	}
	return messages
}

// appendTurn persists one turn and mirrors it onto the in-memory run.
func (e *Engine) appendTurn(ctx context.Context, run *domain.AgentRun, turn domain.Turn) error {
	if err := e.store.AppendTurn(ctx, run.RunID, turn); err != nil {
		e.logRun(ctx, run.RunID, domain.LogLevelError, fmt.Sprintf("failed to append turn %d: %v", turn.TurnNo, err))
		return err
	}
	run.Turns = append(run.Turns, turn)
	e.publish(run.RunID, map[string]interface{}{
		"type":    "turn_appended",
		"ts":      turn.CreatedAt.UnixMilli(),
		"run_id":  run.RunID,
		"turn_no": turn.TurnNo,
		"role":    string(turn.Role),
	})
	return nil
}

// dispatchToolCall resolves and invokes one requested tool call. Failures
// are captured as the call's result; they never abort the run.
func (e *Engine) dispatchToolCall(ctx context.Context, agent *domain.Agent, run *domain.AgentRun, req chat.ToolCallRequest) domain.ToolCall {
	toolCall := domain.ToolCall{
		ToolCallID: req.ID,
		ToolName:   req.Name,
		Args:       req.Args,
	}
	if toolCall.ToolCallID == "" {
		toolCall.ToolCallID = "tc_" + uuid.New().String()[:8]
	}

	// Undeclared tools are never invoked.
	if !agent.DeclaresTool(req.Name) {
		toolCall.Error = fmt.Sprintf("tool %q is not declared by agent %s", req.Name, agent.AgentID)
		e.logRun(ctx, run.RunID, domain.LogLevelWarn, toolCall.Error)
		return toolCall
	}

	if e.policyEngine != nil {
		var argsMap map[string]interface{}
		if len(req.Args) > 0 {
			_ = json.Unmarshal(req.Args, &argsMap)
		}
		decision, reason, err := e.policyEngine.Evaluate(ctx, map[string]interface{}{
			"tool_name": req.Name,
			"args":      argsMap,
			"agent_id":  agent.AgentID,
			"run_id":    run.RunID,
		})
		if err != nil {
			toolCall.Error = fmt.Sprintf("policy evaluation failed: %v", err)
			e.logRun(ctx, run.RunID, domain.LogLevelError, toolCall.Error)
			return toolCall
		}
		if decision != "allow" {
			toolCall.Error = fmt.Sprintf("blocked by policy: %s", reason)
			e.logRun(ctx, run.RunID, domain.LogLevelWarn, fmt.Sprintf("tool %s blocked by policy", req.Name))
			return toolCall
		}
	}

	invokeCtx := ctx
	if e.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, e.config.ToolTimeout)
		defer cancel()
	}
	result, err := e.toolProvider.Invoke(invokeCtx, req.Name, req.Args)
	if err != nil {
		toolCall.Error = err.Error()
		e.logRun(ctx, run.RunID, domain.LogLevelWarn, fmt.Sprintf("tool %s failed: %v", req.Name, err))
		return toolCall
	}
	toolCall.Result = result
	return toolCall
}

// declaredTools advertises to the model only the tools the agent declares.
// A provider listing failure degrades to names without schemas.
func (e *Engine) declaredTools(ctx context.Context, agent *domain.Agent) []chat.ToolDefinition {
	if len(agent.Tools) == 0 {
		return nil
	}

	available := make(map[string]tools.Definition)
	defs, err := e.toolProvider.ListTools(ctx)
	if err != nil {
		log.Printf("WARN: failed to list tools: %v", err)
	} else {
		for _, d := range defs {
			available[d.Name] = d
		}
	}

	out := make([]chat.ToolDefinition, 0, len(agent.Tools))
	for _, name := range agent.Tools {
		def := chat.ToolDefinition{Name: name}
		if d, ok := available[name]; ok {
			def.Description = d.Description
			def.InputSchema = d.InputSchema
		}
		out = append(out, def)
	}
	return out
}
