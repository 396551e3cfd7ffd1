// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/lendcore/agentd/domain"
)

// Store defines the interface for agent and run persistence. Runs are
// mutated only by their owning worker; turns and logs are append-only.
type Store interface {
	// Agent operations
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	UpdateAgent(ctx context.Context, agent *domain.Agent) error
	DeleteAgent(ctx context.Context, agentID string) error

	// Run operations
	CreateRun(ctx context.Context, run *domain.AgentRun) error
	GetRun(ctx context.Context, runID string) (*domain.AgentRun, error)
	ListRunsByAgent(ctx context.Context, agentID string, limit int) ([]domain.AgentRun, error)
	UpdateRun(ctx context.Context, run *domain.AgentRun) error

	// Turn and log operations (append-only)
	AppendTurn(ctx context.Context, runID string, turn domain.Turn) error
	AppendLog(ctx context.Context, runID string, entry domain.LogEntry) error

	// Lifecycle
	Close() error
}
