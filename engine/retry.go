package engine

import (
	"context"
	"time"

	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/domain"
)

// completeWithRetry calls the chat model, retrying transient failures with
// exponential backoff. Non-transient errors fail immediately; the last error
// is returned once all attempts are exhausted.
func (e *Engine) completeWithRetry(ctx context.Context, req *chat.CompletionRequest) (*chat.Completion, error) {
	attempts := e.config.ChatMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := e.config.ChatRetryBaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if e.config.ChatTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.config.ChatTimeout)
		}
		completion, err := e.chatClient.Complete(callCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !domain.IsTransient(err) || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
