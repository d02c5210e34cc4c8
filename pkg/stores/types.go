package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunOutcome represents the final outcome of a plan run.
type RunOutcome string

const (
	RunOutcomeRunning   RunOutcome = "running"
	RunOutcomeSucceeded RunOutcome = "succeeded"
	RunOutcomeStopped   RunOutcome = "stopped"
	RunOutcomeFailed    RunOutcome = "failed"
	RunOutcomeTimeout   RunOutcome = "timeout"
)

// EventLevel represents the severity level of a run event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// PlanRun records one plan run against the analysis service.
type PlanRun struct {
	ID            string     `json:"id"`
	PlanName      string     `json:"plan_name"`
	PlanType      string     `json:"plan_type"`
	ServerVersion string     `json:"server_version"`
	ScenarioID    string     `json:"scenario_id"`
	MarketID      string     `json:"market_id"`
	MarketName    string     `json:"market_name"`
	Outcome       RunOutcome `json:"outcome"`
	Attempts      int        `json:"attempts"`
	Unplaced      bool       `json:"unplaced"`
	Error         *string    `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMS    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RunEvent represents an append-only log event attached to a run.
type RunEvent struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *PlanRun) error
	GetRun(ctx context.Context, id string) (*PlanRun, error)
	FinishRun(ctx context.Context, id string, outcome RunOutcome, errMsg *string, attempts int, duration time.Duration) error
	UpdateRunMarket(ctx context.Context, id, scenarioID, marketID, marketName string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*PlanRun, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	// Event operations
	AppendEvent(ctx context.Context, event *RunEvent) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*RunEvent, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
