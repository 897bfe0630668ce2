package lock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	l := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()
	noop := func() {}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "k1").Return(noop, nil).Once()

		unlock, err := l.Lock(ctx, "k1")
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		primary.AssertExpectations(t)
	})

	t.Run("TimeoutIsNotFailover", func(t *testing.T) {
		primary.On("Lock", ctx, "k2").Return(nil, ErrTimeout).Once()

		_, err := l.Lock(ctx, "k2")
		assert.ErrorIs(t, err, ErrTimeout)
		assert.False(t, l.isDown.Load())
	})

	t.Run("BackendErrorFallsBack", func(t *testing.T) {
		primary.On("Lock", ctx, "k3").Return(nil, errors.Join(ErrBackendUnavailable, errors.New("dial tcp"))).Once()
		fallback.On("Lock", ctx, "k3").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "k3")
		require.NoError(t, err)
		assert.True(t, l.isDown.Load())
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackUntilRecoveryDue", func(t *testing.T) {
		fallback.On("Lock", ctx, "k4").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "k4")
		require.NoError(t, err)
		primary.AssertNotCalled(t, "Lock", ctx, "k4")
	})

	t.Run("Recovery", func(t *testing.T) {
		l.mu.Lock()
		l.lastCheck = time.Now().Add(-2 * time.Minute)
		l.mu.Unlock()
		primary.On("Lock", ctx, "k5").Return(noop, nil).Once()

		_, err := l.Lock(ctx, "k5")
		require.NoError(t, err)
		assert.False(t, l.isDown.Load())
	})
}

func TestFailoverLocker_RealBackends(t *testing.T) {
	logger := zerolog.Nop()
	dead := NewRedisLocker(nil, time.Second, time.Second, &logger)
	l := NewFailoverLocker(dead, NewMemoryLocker(), &logger)

	unlock, err := l.Lock(context.Background(), BookingKey("BK-9"))
	require.NoError(t, err)
	unlock()
}
