package models

import (
	"time"

	"gorm.io/gorm"
)

// Job run statuses recorded by the ledger.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobRun is one lifecycle record per job execution. It is created when a job
// starts, written exactly once more on completion or failure, and only touched
// again when history pruning deletes it.
type JobRun struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	JobName          string     `gorm:"index:idx_job_runs_name_started;not null" json:"job_name"`
	Status           string     `gorm:"not null" json:"status"` // running, completed, failed
	StartedAt        time.Time  `gorm:"index:idx_job_runs_name_started" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DurationSeconds  float64    `json:"duration_seconds"`
	RecordsProcessed int        `json:"records_processed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	NextRunAt        *time.Time `json:"next_run_at,omitempty"`
}

// EodScan is the parent record for one end-of-day price import run.
type EodScan struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StartedAt    time.Time  `gorm:"index" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalSymbols int        `json:"total_symbols"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
}

// EodScanError records one failed symbol within an EOD scan.
type EodScanError struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EodScanID  uint      `gorm:"index" json:"eod_scan_id"`
	Symbol     string    `json:"symbol"`
	Message    string    `json:"message"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// EodScanSuccess records one imported symbol within an EOD scan.
type EodScanSuccess struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EodScanID  uint      `gorm:"index" json:"eod_scan_id"`
	Symbol     string    `json:"symbol"`
	Bars       int       `json:"bars"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// TechJob is the parent record for one technical compute run.
type TechJob struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StartedAt    time.Time  `gorm:"index" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	TotalSymbols int        `json:"total_symbols"`
	Computed     int        `json:"computed"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
}

// TechJobError records one failed symbol within a technical compute run.
type TechJobError struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TechJobID  uint      `gorm:"index" json:"tech_job_id"`
	Symbol     string    `json:"symbol"`
	Message    string    `json:"message"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// TechJobSkip records a symbol skipped for insufficient data.
type TechJobSkip struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TechJobID  uint      `gorm:"index" json:"tech_job_id"`
	Symbol     string    `json:"symbol"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// TechJobSuccess records one computed symbol within a technical compute run.
type TechJobSuccess struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TechJobID  uint      `gorm:"index" json:"tech_job_id"`
	Symbol     string    `json:"symbol"`
	Rows       int       `json:"rows"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
}

// SignalRule is a stored crossing-condition expression, compiled and
// evaluated by the daily signals job.
type SignalRule struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null" json:"name"`
	Expression string    `gorm:"not null" json:"expression"` // e.g. "price crosses_above SMA(20)"
	Enabled    bool      `gorm:"default:true" json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Signal is one boolean rule match for a symbol on a date.
type Signal struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RuleID      uint       `gorm:"index:idx_signals_rule_symbol_date" json:"rule_id"`
	Rule        SignalRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
	Symbol      string     `gorm:"index:idx_signals_rule_symbol_date" json:"symbol"`
	Date        time.Time  `gorm:"index:idx_signals_rule_symbol_date" json:"date"`
	Expression  string     `json:"expression"`
	TriggeredAt time.Time  `json:"triggered_at"`
}

// DailyMover is one ranked 1-day percent move, refreshed by the daily movers job.
type DailyMover struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Symbol        string    `gorm:"index:idx_movers_date_symbol" json:"symbol"`
	Date          time.Time `gorm:"index:idx_movers_date_symbol" json:"date"`
	Close         float64   `json:"close"`
	ChangePercent float64   `json:"change_percent"`
	Rank          int       `json:"rank"`
	Direction     string    `json:"direction"` // gainer, loser
	CreatedAt     time.Time `json:"created_at"`
}

// MigrateJobModels runs database migrations for job and signal models
func MigrateJobModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&JobRun{},
		&EodScan{},
		&EodScanError{},
		&EodScanSuccess{},
		&TechJob{},
		&TechJobError{},
		&TechJobSkip{},
		&TechJobSuccess{},
		&SignalRule{},
		&Signal{},
		&DailyMover{},
	)
}
