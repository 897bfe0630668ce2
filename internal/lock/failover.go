package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"carrental/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker prefers the primary (redis) locker and switches to the
// fallback (memory) when the primary backend errors. It retries the primary
// after recoveryInterval.
type FailoverLocker struct {
	primary  domain.Locker
	fallback domain.Locker
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if !l.isDown.Load() || l.recoveryDue() {
		unlock, err := l.primary.Lock(ctx, key)
		if err == nil {
			if l.isDown.CompareAndSwap(true, false) {
				l.logger.Info().Msg("Primary locker recovered")
			}
			return unlock, nil
		}
		if !errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		if !l.isDown.Swap(true) {
			l.logger.Error().Err(err).Msg("Primary locker failed, falling back to memory")
		}
		l.markChecked()
	}

	return l.fallback.Lock(ctx, key)
}

func (l *FailoverLocker) recoveryDue() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastCheck) > recoveryInterval
}

func (l *FailoverLocker) markChecked() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
}
