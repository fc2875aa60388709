package jobs

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Locker provides process-wide mutual exclusion per job kind. TryAcquire
// never blocks: a held lock reports (false, nil).
type Locker interface {
	TryAcquire(ctx context.Context, kind Kind) (bool, error)
	Release(ctx context.Context, kind Kind) error
}

// AdvisoryLocker backs mutual exclusion with Postgres advisory locks, which
// guard against concurrent runs from other processes too. Advisory locks are
// session-scoped, so each held lock pins one pooled connection until release.
type AdvisoryLocker struct {
	db     *gorm.DB
	logger *zap.Logger

	mu   sync.Mutex
	held map[Kind]*sql.Conn
}

// NewAdvisoryLocker creates a new advisory lock manager
func NewAdvisoryLocker(db *gorm.DB, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{
		db:     db,
		logger: logger,
		held:   make(map[Kind]*sql.Conn),
	}
}

// TryAcquire requests the job's reserved advisory lock without blocking.
func (l *AdvisoryLocker) TryAcquire(ctx context.Context, kind Kind) (bool, error) {
	key, ok := lockKeys[kind]
	if !ok {
		return false, ErrUnknownJob
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[kind]; exists {
		// Already held by this process.
		return false, nil
	}

	sqlDB, err := l.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, err
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.held[kind] = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool. Releasing a
// lock that is not held is a no-op.
func (l *AdvisoryLocker) Release(ctx context.Context, kind Kind) error {
	key, ok := lockKeys[kind]
	if !ok {
		return ErrUnknownJob
	}

	l.mu.Lock()
	conn := l.held[kind]
	delete(l.held, kind)
	l.mu.Unlock()

	if conn == nil {
		return nil
	}

	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", key)
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		l.logger.Error("advisory unlock failed", zap.String("job", string(kind)), zap.Error(err))
	}
	return err
}

// MemoryLocker is an in-process Locker for tests and development databases
// without advisory lock support.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[Kind]bool
}

// NewMemoryLocker creates an in-process lock manager
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[Kind]bool)}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, kind Kind) (bool, error) {
	if !Valid(kind) {
		return false, ErrUnknownJob
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[kind] {
		return false, nil
	}
	l.held[kind] = true
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, kind Kind) error {
	if !Valid(kind) {
		return ErrUnknownJob
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, kind)
	return nil
}
