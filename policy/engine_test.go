package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyAllows(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	decision, _, err := engine.Evaluate(ctx, map[string]interface{}{
		"tool_name": "ledger.lookup",
		"agent_id":  "agt_1",
		"run_id":    "run_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "allow", decision)
}

func TestDefaultPolicyBlocksDenyList(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	for _, tool := range []string{"shell.exec", "ledger.delete_all"} {
		decision, _, err := engine.Evaluate(ctx, map[string]interface{}{
			"tool_name": tool,
		})
		require.NoError(t, err)
		assert.Equal(t, "block", decision, "tool %s", tool)
	}
}

func TestCustomPolicy(t *testing.T) {
	custom := `
package tool_policy

default decision = "block"

decision = "allow" {
	input.agent_id == "agt_trusted"
}
`
	ctx := context.Background()
	engine, err := NewEngine(ctx, custom)
	require.NoError(t, err)

	decision, _, err := engine.Evaluate(ctx, map[string]interface{}{"agent_id": "agt_trusted", "tool_name": "anything"})
	require.NoError(t, err)
	assert.Equal(t, "allow", decision)

	decision, _, err = engine.Evaluate(ctx, map[string]interface{}{"agent_id": "agt_other", "tool_name": "anything"})
	require.NoError(t, err)
	assert.Equal(t, "block", decision)
}

func TestInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "this is not rego")
	assert.Error(t, err)
}
