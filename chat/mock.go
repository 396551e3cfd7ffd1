package chat

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a canned-response implementation of Client for local
// development and tests.
type MockClient struct{}

// NewMockClient creates a new mock chat client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)

// Complete returns a deterministic response derived from the last message.
func (m *MockClient) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}

	// Goal-evaluation prompts get a refusal so mock runs drive to the
	// max-turn boundary instead of completing on the first pass.
	if strings.Contains(last, "YES or NO") {
		return &Completion{Content: "NO"}, nil
	}

	content := fmt.Sprintf("[mock %s] processed %d message(s)", req.Options.Model, len(req.Messages))
	return &Completion{
		Content: content,
		Usage: &Usage{
			PromptTokens:     len(req.Messages) * 8,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(req.Messages)*8 + len(content)/4,
		},
	}, nil
}
