package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(st Settings) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerWithSettings("test", st)
	cb.now = clock.Now
	cb.toNewGeneration(clock.Now())
	return cb, clock
}

func fail(ctx context.Context) (any, error)    { return nil, errors.New("gateway down") }
func succeed(ctx context.Context) (any, error) { return "ok", nil }

// Circuit Breaker Tests

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("checkout")

	assert.Equal(t, "checkout", cb.Name())
	assert.Equal(t, uint32(5), cb.maxRequests)
	assert.Equal(t, uint32(10), cb.minRequests)
	assert.Equal(t, 60*time.Second, cb.interval)
	assert.Equal(t, 30*time.Second, cb.timeout)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb, _ := newTestBreaker(Settings{})

	result, err := cb.Execute(context.Background(), succeed)

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	counts := cb.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb, _ := newTestBreaker(Settings{MinRequests: 4, FailureRatio: 0.5})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, fail)
		require.Error(t, err)
		assert.Equal(t, StateClosed, cb.State(), "below min requests")
	}

	_, err := cb.Execute(ctx, fail)
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	_, err = cb.Execute(ctx, succeed)
	assert.ErrorIs(t, err, ErrOpenState)
}

func TestCircuitBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	cb, clock := newTestBreaker(Settings{MinRequests: 1, MaxRequests: 2, Timeout: 10 * time.Second})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(ctx, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.State())

	_, err = cb.Execute(ctx, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Settings{MinRequests: 1, Timeout: time.Second})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	_, _ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenLimitsRequests(t *testing.T) {
	cb, clock := newTestBreaker(Settings{MinRequests: 1, MaxRequests: 1, Timeout: time.Second})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cb.Execute(ctx, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()
	<-started

	_, err := cb.Execute(ctx, succeed)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	<-done
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CanceledContextIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(Settings{MinRequests: 1})

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_IntervalResetsCounts(t *testing.T) {
	cb, clock := newTestBreaker(Settings{Interval: time.Minute})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	require.Equal(t, uint32(1), cb.Counts().TotalFailures)

	clock.Advance(2 * time.Minute)
	_ = cb.State()
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb, _ := newTestBreaker(Settings{})

	assert.Panics(t, func() {
		_, _ = cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
			panic("boom")
		})
	})
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("concurrent")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cb.Execute(ctx, succeed)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(50), cb.Counts().TotalSuccesses)
}

func TestRun_Typed(t *testing.T) {
	cb, _ := newTestBreaker(Settings{})

	n, err := Run(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	s, err := Run(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "", errors.New("nope")
	})
	assert.Error(t, err)
	assert.Empty(t, s)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

// Random Tests

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestGenerateBase62(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := GenerateBase62(20)
		require.NoError(t, err)
		assert.Len(t, id, 20)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(base62Charset, r), "unexpected rune %q", r)
		}
		assert.False(t, seen[id], "duplicate id")
		seen[id] = true
	}
}

func TestGenerateTransferCode(t *testing.T) {
	code, err := GenerateTransferCode(8)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Regexp(t, `^[0-9]{8}$`, code)

	counts := make(map[rune]int)
	for i := 0; i < 500; i++ {
		code, err := GenerateTransferCode(8)
		require.NoError(t, err)
		for _, r := range code {
			counts[r]++
		}
	}
	// 4000 draws, 400 expected per digit
	for r := '0'; r <= '9'; r++ {
		assert.InDelta(t, 400, counts[r], 120, "digit %q", r)
	}
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetErr(errors.New("connection failed"))

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Benchmark Tests

func BenchmarkCircuitBreaker_Execute_Success(b *testing.B) {
	cb := NewCircuitBreaker("benchmark")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cb.Execute(ctx, succeed)
	}
}

func BenchmarkGenerateBase62(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GenerateBase62(20)
	}
}
