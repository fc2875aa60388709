package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
	"go_signal_engine/services/apperror"
)

// RunHistoryCleanup deletes batch-run records and derived rows older than the
// retention window. Children go before parents so an interrupted run never
// strands orphaned child rows.
func (b *Bodies) RunHistoryCleanup(ctx context.Context) (Outcome, error) {
	cutoff := time.Now().AddDate(0, 0, -b.opts.RetentionDays)
	deleted := int64(0)

	n, err := b.cleanupScans(cutoff)
	deleted += n
	if err != nil {
		return Outcome{}, err
	}

	n, err = b.cleanupTechJobs(cutoff)
	deleted += n
	if err != nil {
		return Outcome{}, err
	}

	res := b.db.Where("triggered_at < ?", cutoff).Delete(&models.Signal{})
	if res.Error != nil {
		return Outcome{}, apperror.Persistence("cleanup signals", res.Error)
	}
	deleted += res.RowsAffected

	res = b.db.Where("date < ?", cutoff).Delete(&models.DailyMover{})
	if res.Error != nil {
		return Outcome{}, apperror.Persistence("cleanup movers", res.Error)
	}
	deleted += res.RowsAffected

	b.logger.Info("history cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return Outcome{Records: int(deleted)}, nil
}

func (b *Bodies) cleanupScans(cutoff time.Time) (int64, error) {
	var ids []uint
	err := b.db.Model(&models.EodScan{}).
		Where("started_at < ?", cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, apperror.Persistence("cleanup scan select", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted := int64(0)
	err = b.db.Transaction(func(tx *gorm.DB) error {
		for _, child := range []interface{}{&models.EodScanError{}, &models.EodScanSuccess{}} {
			res := tx.Where("eod_scan_id IN ?", ids).Delete(child)
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		res := tx.Where("id IN ?", ids).Delete(&models.EodScan{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	if err != nil {
		return deleted, apperror.Persistence("cleanup scans", err)
	}
	return deleted, nil
}

func (b *Bodies) cleanupTechJobs(cutoff time.Time) (int64, error) {
	var ids []uint
	err := b.db.Model(&models.TechJob{}).
		Where("started_at < ?", cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, apperror.Persistence("cleanup tech select", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted := int64(0)
	err = b.db.Transaction(func(tx *gorm.DB) error {
		children := []interface{}{
			&models.TechJobError{},
			&models.TechJobSkip{},
			&models.TechJobSuccess{},
		}
		for _, child := range children {
			res := tx.Where("tech_job_id IN ?", ids).Delete(child)
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		res := tx.Where("id IN ?", ids).Delete(&models.TechJob{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	if err != nil {
		return deleted, apperror.Persistence("cleanup tech jobs", err)
	}
	return deleted, nil
}
