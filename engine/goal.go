package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/domain"
)

const goalEvalInstruction = "You are a strict evaluator. Given the conversation transcript and a goal, decide whether the goal has been satisfied. Answer exactly YES or NO."

// evaluateGoal asks the chat model whether the run's goal is satisfied by
// the conversation so far. Anything other than a clear affirmative counts as
// not achieved; callers must never treat an error here as a run failure.
func (e *Engine) evaluateGoal(ctx context.Context, agent *domain.Agent, run *domain.AgentRun) (bool, error) {
	var transcript strings.Builder
	for _, turn := range run.Turns {
		fmt.Fprintf(&transcript, "[%s] %s\n", turn.Role, turn.Content)
	}

	messages := []chat.Message{
		{Role: string(domain.RoleSystem), Content: goalEvalInstruction},
		{Role: string(domain.RoleUser), Content: fmt.Sprintf("Transcript:\n%s\nGoal: %s\nHas the goal been satisfied? Answer exactly YES or NO.", transcript.String(), run.Goal)},
	}

	completion, err := e.completeWithRetry(ctx, &chat.CompletionRequest{
		Messages: messages,
		Options:  agent.Options,
	})
	if err != nil {
		return false, err
	}

	return isAffirmative(completion.Content), nil
}

// isAffirmative accepts only an explicit leading YES. Malformed or hedged
// answers fail closed.
func isAffirmative(answer string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, ".!\"'")
	return normalized == "YES" || strings.HasPrefix(normalized, "YES,") || strings.HasPrefix(normalized, "YES ")
}
