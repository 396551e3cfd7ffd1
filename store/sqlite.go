package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lendcore/agentd/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT,
			prompt_template TEXT NOT NULL,
			options TEXT NOT NULL,
			tools TEXT,
			input_vars TEXT,
			multi_turn INTEGER NOT NULL DEFAULT 0,
			max_turns INTEGER NOT NULL DEFAULT 1,
			goal TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			owner_id TEXT,
			status TEXT NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			max_turns INTEGER NOT NULL DEFAULT 1,
			goal TEXT,
			goal_achieved INTEGER NOT NULL DEFAULT 0,
			input_values TEXT,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			FOREIGN KEY (agent_id) REFERENCES agents(agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			run_id TEXT NOT NULL,
			turn_no INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, turn_no),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs(run_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateAgent creates a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	options, _ := json.Marshal(agent.Options)
	tools, _ := json.Marshal(agent.Tools)
	inputVars, _ := json.Marshal(agent.InputVars)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (agent_id, name, owner_id, prompt_template, options, tools, input_vars, multi_turn, max_turns, goal, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.AgentID, agent.Name, agent.OwnerID, agent.PromptTemplate, string(options), string(tools), string(inputVars),
		agent.MultiTurn, agent.MaxTurns, agent.Goal, agent.CreatedAt, agent.UpdatedAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, owner_id, prompt_template, options, tools, input_vars, multi_turn, max_turns, goal, created_at, updated_at
		 FROM agents WHERE agent_id = ?`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, owner_id, prompt_template, options, tools, input_vars, multi_turn, max_turns, goal, created_at, updated_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgent updates an existing agent.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	options, _ := json.Marshal(agent.Options)
	tools, _ := json.Marshal(agent.Tools)
	inputVars, _ := json.Marshal(agent.InputVars)
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, owner_id = ?, prompt_template = ?, options = ?, tools = ?, input_vars = ?, multi_turn = ?, max_turns = ?, goal = ?, updated_at = ?
		 WHERE agent_id = ?`,
		agent.Name, agent.OwnerID, agent.PromptTemplate, string(options), string(tools), string(inputVars),
		agent.MultiTurn, agent.MaxTurns, agent.Goal, time.Now(), agent.AgentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "agent", ID: agent.AgentID}
	}
	return nil
}

// DeleteAgent deletes an agent by ID. Agents with recorded runs are kept so
// run history never dangles.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, agentID string) error {
	var runCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE agent_id = ?`, agentID).Scan(&runCount); err != nil {
		return fmt.Errorf("failed to count agent runs: %w", err)
	}
	if runCount > 0 {
		return &domain.ConflictError{Kind: "agent", ID: agentID, Message: "agent has recorded runs and cannot be deleted"}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "agent", ID: agentID}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var ownerID, options, tools, inputVars, goal sql.NullString
	if err := row.Scan(&agent.AgentID, &agent.Name, &ownerID, &agent.PromptTemplate, &options, &tools, &inputVars,
		&agent.MultiTurn, &agent.MaxTurns, &goal, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		agent.OwnerID = ownerID.String
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &agent.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent options: %w", err)
		}
	}
	if tools.Valid && tools.String != "" {
		if err := json.Unmarshal([]byte(tools.String), &agent.Tools); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent tools: %w", err)
		}
	}
	if inputVars.Valid && inputVars.String != "" {
		if err := json.Unmarshal([]byte(inputVars.String), &agent.InputVars); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent input vars: %w", err)
		}
	}
	if goal.Valid {
		agent.Goal = goal.String
	}
	return &agent, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.AgentRun) error {
	inputValues, _ := json.Marshal(run.InputValues)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, agent_id, owner_id, status, turn_count, max_turns, goal, goal_achieved, input_values, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.AgentID, run.OwnerID, run.Status, run.TurnCount, run.MaxTurns, run.Goal, run.GoalAchieved,
		string(inputValues), run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRun retrieves a run by ID, including its turns and logs.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, agent_id, owner_id, status, turn_count, max_turns, goal, goal_achieved, input_values, error, created_at, started_at, updated_at, completed_at
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	turns, err := s.getTurns(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Turns = turns

	logs, err := s.getLogs(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Logs = logs

	return run, nil
}

// ListRunsByAgent lists runs for an agent, newest first, without turns or logs.
func (s *SQLiteStore) ListRunsByAgent(ctx context.Context, agentID string, limit int) ([]domain.AgentRun, error) {
	query := `SELECT run_id, agent_id, owner_id, status, turn_count, max_turns, goal, goal_achieved, input_values, error, created_at, started_at, updated_at, completed_at
		 FROM runs WHERE agent_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRun persists the mutable fields of a run (status, counters, flags,
// timestamps, error). Turns and logs are appended separately.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.AgentRun) error {
	var errStr sql.NullString
	if run.Error != nil {
		errStr = sql.NullString{String: string(run.Error), Valid: true}
	}
	var startedAt, completedAt sql.NullTime
	if run.StartedAt != nil {
		startedAt = sql.NullTime{Time: *run.StartedAt, Valid: true}
	}
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, turn_count = ?, goal_achieved = ?, error = ?, started_at = ?, updated_at = ?, completed_at = ?
		 WHERE run_id = ?`,
		run.Status, run.TurnCount, run.GoalAchieved, errStr, startedAt, time.Now(), completedAt, run.RunID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "run", ID: run.RunID}
	}
	return nil
}

func scanRun(row rowScanner) (*domain.AgentRun, error) {
	var run domain.AgentRun
	var ownerID, goal, inputValues, errData sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.AgentID, &ownerID, &run.Status, &run.TurnCount, &run.MaxTurns, &goal, &run.GoalAchieved,
		&inputValues, &errData, &run.CreatedAt, &startedAt, &run.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		run.OwnerID = ownerID.String
	}
	if goal.Valid {
		run.Goal = goal.String
	}
	if inputValues.Valid && inputValues.String != "" {
		if err := json.Unmarshal([]byte(inputValues.String), &run.InputValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run input values: %w", err)
		}
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// AppendTurn appends one turn to a run's conversation. The composite primary
// key rejects duplicate turn numbers, so a turn can never be overwritten.
func (s *SQLiteStore) AppendTurn(ctx context.Context, runID string, turn domain.Turn) error {
	var toolCalls sql.NullString
	if len(turn.ToolCalls) > 0 {
		data, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (run_id, turn_no, role, content, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, turn.TurnNo, turn.Role, turn.Content, toolCalls, turn.CreatedAt)
	return err
}

// AppendLog appends one diagnostic entry to a run.
func (s *SQLiteStore) AppendLog(ctx context.Context, runID string, entry domain.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs (run_id, ts, level, message) VALUES (?, ?, ?, ?)`,
		runID, entry.Ts, entry.Level, entry.Message)
	return err
}

func (s *SQLiteStore) getTurns(ctx context.Context, runID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_no, role, content, tool_calls, created_at FROM turns WHERE run_id = ? ORDER BY turn_no ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var toolCalls sql.NullString
		if err := rows.Scan(&turn.TurnNo, &turn.Role, &turn.Content, &toolCalls, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &turn.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) getLogs(ctx context.Context, runID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, level, message FROM run_logs WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		if err := rows.Scan(&entry.Ts, &entry.Level, &entry.Message); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
