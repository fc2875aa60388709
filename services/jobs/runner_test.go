package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go_signal_engine/models"
)

func newTestRunner(t *testing.T) (*Runner, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedger(db, zap.NewNop())
	return NewRunner(ledger, NewMemoryLocker(), 5, zap.NewNop()), db
}

func countRuns(t *testing.T, db *gorm.DB, kind Kind) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.JobRun{}).Where("job_name = ?", string(kind)).Count(&count).Error)
	return count
}

func TestRunnerCompletedRun(t *testing.T) {
	runner, db := newTestRunner(t)
	runner.Register(UniverseRefresh, func(ctx context.Context) (Outcome, error) {
		return Outcome{Records: 7}, nil
	})

	summary := runner.Run(context.Background(), UniverseRefresh)

	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 7, summary.Records)

	var run models.JobRun
	require.NoError(t, db.First(&run, summary.RunID).Error)
	assert.Equal(t, models.JobStatusCompleted, run.Status)
	assert.Equal(t, 7, run.RecordsProcessed)
}

func TestRunnerBodyErrorRecordedAsFailed(t *testing.T) {
	runner, db := newTestRunner(t)
	runner.Register(UniverseRefresh, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New("provider down")
	})

	summary := runner.Run(context.Background(), UniverseRefresh)

	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "provider down", summary.Error)

	var run models.JobRun
	require.NoError(t, db.First(&run, summary.RunID).Error)
	assert.Equal(t, models.JobStatusFailed, run.Status)
	assert.Equal(t, "provider down", run.ErrorMessage)
}

func TestRunnerPanicContained(t *testing.T) {
	runner, db := newTestRunner(t)
	runner.Register(UniverseRefresh, func(ctx context.Context) (Outcome, error) {
		panic("boom")
	})

	summary := runner.Run(context.Background(), UniverseRefresh)

	assert.Equal(t, StatusFailed, summary.Status)
	assert.True(t, strings.HasPrefix(summary.Error, "panic:"))

	var run models.JobRun
	require.NoError(t, db.First(&run, summary.RunID).Error)
	assert.Equal(t, models.JobStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "boom")
}

func TestRunnerLockBusyWritesNoRow(t *testing.T) {
	runner, db := newTestRunner(t)
	runner.Register(UniverseRefresh, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, nil
	})

	acquired, err := runner.locker.TryAcquire(context.Background(), UniverseRefresh)
	require.NoError(t, err)
	require.True(t, acquired)
	defer runner.locker.Release(context.Background(), UniverseRefresh)

	summary := runner.Run(context.Background(), UniverseRefresh)

	assert.Equal(t, StatusLockBusy, summary.Status)
	assert.Zero(t, summary.RunID)
	assert.EqualValues(t, 0, countRuns(t, db, UniverseRefresh))
}

func TestRunnerConcurrentFiringsSingleWinner(t *testing.T) {
	runner, db := newTestRunner(t)

	release := make(chan struct{})
	runner.Register(HistoryCleanup, func(ctx context.Context) (Outcome, error) {
		<-release
		return Outcome{}, nil
	})

	const firings = 4
	summaries := make([]Summary, firings)
	var wg sync.WaitGroup
	for i := 0; i < firings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i] = runner.Run(context.Background(), HistoryCleanup)
		}(i)
	}

	// Let the losers bounce off the lock, then free the winner.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	completed, busy := 0, 0
	for _, s := range summaries {
		switch s.Status {
		case StatusCompleted:
			completed++
		case StatusLockBusy:
			busy++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, firings-1, busy)
	assert.EqualValues(t, 1, countRuns(t, db, HistoryCleanup))
}

func TestRunnerLockReleasedAfterRun(t *testing.T) {
	runner, _ := newTestRunner(t)
	runner.Register(UniverseRefresh, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New("fails every time")
	})

	first := runner.Run(context.Background(), UniverseRefresh)
	second := runner.Run(context.Background(), UniverseRefresh)

	// Failure still releases the lock for the next firing.
	assert.Equal(t, StatusFailed, first.Status)
	assert.Equal(t, StatusFailed, second.Status)
}

func TestRunnerChainRunsSuccessorsInOrder(t *testing.T) {
	runner, db := newTestRunner(t)

	var mu sync.Mutex
	var order []Kind
	record := func(kind Kind) Body {
		return func(ctx context.Context) (Outcome, error) {
			mu.Lock()
			order = append(order, kind)
			mu.Unlock()
			return Outcome{}, nil
		}
	}
	runner.Register(EodScan, record(EodScan))
	runner.Register(TechnicalCompute, record(TechnicalCompute))
	runner.Register(DailyMovers, record(DailyMovers))
	runner.Register(DailySignals, record(DailySignals))

	summary := runner.Run(context.Background(), EodScan)
	require.Equal(t, StatusCompleted, summary.Status)

	assert.Equal(t, []Kind{EodScan, TechnicalCompute, DailyMovers, DailySignals}, order)
	for _, kind := range []Kind{EodScan, TechnicalCompute, DailyMovers, DailySignals} {
		assert.EqualValues(t, 1, countRuns(t, db, kind), string(kind))
	}

	// Each successor starts only after its predecessor's terminal write.
	var eod, tech models.JobRun
	require.NoError(t, db.Where("job_name = ?", string(EodScan)).First(&eod).Error)
	require.NoError(t, db.Where("job_name = ?", string(TechnicalCompute)).First(&tech).Error)
	require.NotNil(t, eod.CompletedAt)
	assert.False(t, tech.StartedAt.Before(eod.StartedAt))
}

func TestRunnerFailedPredecessorHaltsChain(t *testing.T) {
	runner, db := newTestRunner(t)

	runner.Register(EodScan, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New("import failed")
	})
	techRan := false
	runner.Register(TechnicalCompute, func(ctx context.Context) (Outcome, error) {
		techRan = true
		return Outcome{}, nil
	})

	summary := runner.Run(context.Background(), EodScan)

	assert.Equal(t, StatusFailed, summary.Status)
	assert.False(t, techRan)
	assert.EqualValues(t, 0, countRuns(t, db, TechnicalCompute))
}

func TestRunnerUnregisteredBodyFails(t *testing.T) {
	runner, db := newTestRunner(t)
	summary := runner.Run(context.Background(), DailySignals)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.EqualValues(t, 0, countRuns(t, db, DailySignals))
}

func TestRunnerRegisterUnknownKindPanics(t *testing.T) {
	runner, _ := newTestRunner(t)
	assert.Panics(t, func() {
		runner.Register(Kind("bogus"), func(ctx context.Context) (Outcome, error) {
			return Outcome{}, nil
		})
	})
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, EodScan)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.TryAcquire(ctx, EodScan)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different kind is an independent lock.
	ok, err = locker.TryAcquire(ctx, DailyMovers)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, locker.Release(ctx, EodScan))
	ok, err = locker.TryAcquire(ctx, EodScan)
	require.NoError(t, err)
	assert.True(t, ok)
}
