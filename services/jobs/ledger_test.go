package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go_signal_engine/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateJobModels(db))
	require.NoError(t, models.MigrateStockModels(db))
	return db
}

func TestLedgerBeginCreatesRunningRow(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	next := time.Now().Add(time.Hour)
	runID, err := ledger.Begin(EodScan, &next)
	require.NoError(t, err)
	require.NotZero(t, runID)

	var run models.JobRun
	require.NoError(t, db.First(&run, runID).Error)
	assert.Equal(t, string(EodScan), run.JobName)
	assert.Equal(t, models.JobStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)
	require.NotNil(t, run.NextRunAt)
}

func TestLedgerBeginRejectsUnknownKind(t *testing.T) {
	ledger := NewLedger(newTestDB(t), zap.NewNop())
	_, err := ledger.Begin(Kind("bogus"), nil)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestLedgerCompleteClosesRunOnce(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	runID, err := ledger.Begin(TechnicalCompute, nil)
	require.NoError(t, err)

	require.NoError(t, ledger.Complete(runID, 42))

	var run models.JobRun
	require.NoError(t, db.First(&run, runID).Error)
	assert.Equal(t, models.JobStatusCompleted, run.Status)
	assert.Equal(t, 42, run.RecordsProcessed)
	require.NotNil(t, run.CompletedAt)
	assert.GreaterOrEqual(t, run.DurationSeconds, 0.0)

	// A second terminal write must not overwrite the first.
	require.NoError(t, ledger.Fail(runID, "late failure"))
	require.NoError(t, db.First(&run, runID).Error)
	assert.Equal(t, models.JobStatusCompleted, run.Status)
	assert.Empty(t, run.ErrorMessage)
}

func TestLedgerFailRecordsMessage(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	runID, err := ledger.Begin(EodScan, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Fail(runID, "provider unreachable"))

	var run models.JobRun
	require.NoError(t, db.First(&run, runID).Error)
	assert.Equal(t, models.JobStatusFailed, run.Status)
	assert.Equal(t, "provider unreachable", run.ErrorMessage)
}

func TestLedgerFailTruncatesLongMessages(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	runID, err := ledger.Begin(EodScan, nil)
	require.NoError(t, err)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, ledger.Fail(runID, string(long)))

	var run models.JobRun
	require.NoError(t, db.First(&run, runID).Error)
	assert.Len(t, run.ErrorMessage, maxErrorMessageLen)
}

func TestLedgerFinishMissingRunIsNoop(t *testing.T) {
	ledger := NewLedger(newTestDB(t), zap.NewNop())
	assert.NoError(t, ledger.Complete(99999, 0))
	assert.NoError(t, ledger.Fail(99999, "gone"))
}

func TestLedgerPruneKeepsNewestRuns(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		run := models.JobRun{
			JobName:   string(EodScan),
			Status:    models.JobStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&run).Error)
	}
	// Another job's history must be untouched.
	other := models.JobRun{JobName: string(HistoryCleanup), Status: models.JobStatusCompleted, StartedAt: base}
	require.NoError(t, db.Create(&other).Error)

	require.NoError(t, ledger.PruneHistory(EodScan, 5))

	var kept []models.JobRun
	require.NoError(t, db.Where("job_name = ?", string(EodScan)).Order("started_at ASC").Find(&kept).Error)
	require.Len(t, kept, 5)
	// The three oldest are gone.
	assert.True(t, kept[0].StartedAt.After(base.Add(2*time.Minute)))

	var otherCount int64
	require.NoError(t, db.Model(&models.JobRun{}).Where("job_name = ?", string(HistoryCleanup)).Count(&otherCount).Error)
	assert.EqualValues(t, 1, otherCount)
}

func TestLedgerPruneFewerRunsThanKeep(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	runID, err := ledger.Begin(EodScan, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Complete(runID, 0))

	require.NoError(t, ledger.PruneHistory(EodScan, 5))

	var count int64
	require.NoError(t, db.Model(&models.JobRun{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLedgerRecentRunsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		run := models.JobRun{
			JobName:   string(EodScan),
			Status:    models.JobStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&run).Error)
	}

	runs, err := ledger.RecentRuns(EodScan, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}
