package jobs

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/apperror"
)

const maxErrorMessageLen = 1000

// Ledger records the lifecycle of every job run. Each operation is a single
// transactional write; no partial update is ever observable.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedger creates a new job status ledger
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Begin inserts a running record and returns its id. The caller must not
// proceed into the lock-protected body without a valid run id.
func (l *Ledger) Begin(kind Kind, nextRunAt *time.Time) (uint, error) {
	if !Valid(kind) {
		return 0, ErrUnknownJob
	}
	run := models.JobRun{
		JobName:   string(kind),
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
		NextRunAt: nextRunAt,
	}
	if err := l.db.Create(&run).Error; err != nil {
		return 0, apperror.Persistence("begin "+string(kind), err)
	}
	return run.ID, nil
}

// Complete closes a run as completed. No-op when the run id no longer
// exists, so a double completion race is harmless.
func (l *Ledger) Complete(runID uint, recordsProcessed int) error {
	return l.finish(runID, models.JobStatusCompleted, recordsProcessed, "")
}

// Fail closes a run as failed with a human-readable message. No-op when the
// run id no longer exists.
func (l *Ledger) Fail(runID uint, message string) error {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	return l.finish(runID, models.JobStatusFailed, 0, message)
}

func (l *Ledger) finish(runID uint, status string, recordsProcessed int, message string) error {
	var run models.JobRun
	err := l.db.First(&run, runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperror.Persistence("load run", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":            status,
		"completed_at":      &now,
		"duration_seconds":  now.Sub(run.StartedAt).Seconds(),
		"records_processed": recordsProcessed,
		"error_message":     message,
	}
	// Guard on the running status so the record is mutated at most once.
	err = l.db.Model(&models.JobRun{}).
		Where("id = ? AND status = ?", runID, models.JobStatusRunning).
		Updates(updates).Error
	if err != nil {
		return apperror.Persistence("finish run", err)
	}
	return nil
}

// PruneHistory deletes all but the keep most recently started runs for the
// job, ties broken by id descending. Runs after every completion or failure
// so history never grows unbounded.
func (l *Ledger) PruneHistory(kind Kind, keep int) error {
	if !Valid(kind) {
		return ErrUnknownJob
	}
	if keep < 0 {
		keep = 0
	}

	var keepIDs []uint
	err := l.db.Model(&models.JobRun{}).
		Where("job_name = ?", string(kind)).
		Order("started_at DESC, id DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return apperror.Persistence("prune select", err)
	}

	query := l.db.Where("job_name = ?", string(kind))
	if len(keepIDs) > 0 {
		query = query.Where("id NOT IN ?", keepIDs)
	}
	res := query.Delete(&models.JobRun{})
	if res.Error != nil {
		return apperror.Persistence("prune delete", res.Error)
	}
	if res.RowsAffected > 0 {
		l.logger.Debug("pruned job history",
			zap.String("job", string(kind)),
			zap.Int64("deleted", res.RowsAffected))
	}
	return nil
}

// RecentRuns returns the most recent runs for a job, newest first.
func (l *Ledger) RecentRuns(kind Kind, limit int) ([]models.JobRun, error) {
	if !Valid(kind) {
		return nil, ErrUnknownJob
	}
	if limit <= 0 {
		limit = 5
	}
	runs := []models.JobRun{}
	err := l.db.Where("job_name = ?", string(kind)).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, apperror.Persistence("recent runs", err)
	}
	return runs, nil
}
