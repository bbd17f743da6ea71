package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examforge/gatekeeper/pkg/limits/budget"
	"examforge/gatekeeper/pkg/limits/storage"
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

type fixture struct {
	manager *Manager
	tracker *budget.Tracker
	backend *storage.MemoryBackend
	clock   *fakeClock
}

func newFixture(t *testing.T, dailyLimit int64) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	backend := storage.NewMemoryBackend()
	tracker := budget.NewTracker(storage.NewCounters(backend, clock.Now), budget.Config{DailyLimit: dailyLimit})
	manager := NewManager(tracker, Config{Clock: clock.Now})
	return &fixture{manager: manager, tracker: tracker, backend: backend, clock: clock}
}

func TestManager_ReserveAndComplete(t *testing.T) {
	f := newFixture(t, 2_000_000)
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, "user-42", 500_000)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.ReservationID)
	assert.Equal(t, int64(1_500_000), res.Remaining)
	assert.Equal(t, 1, f.manager.Pending())

	done, err := f.manager.Complete(ctx, res.ReservationID, 450_000)
	require.NoError(t, err)
	require.True(t, done.Success)
	assert.Equal(t, int64(50_000), done.Adjusted)
	assert.Equal(t, int64(450_000), done.TotalUsed)
	assert.Equal(t, int64(1_550_000), done.Remaining)
	assert.Equal(t, 0, f.manager.Pending())
}

func TestManager_CompleteOverEstimate(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, "user-1", 100)
	require.NoError(t, err)

	done, err := f.manager.Complete(ctx, res.ReservationID, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(-150), done.Adjusted)
	assert.Equal(t, int64(250), done.TotalUsed)
	assert.Equal(t, int64(750), done.Remaining)
}

func TestManager_ReserveShortfall(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.tracker.Record(ctx, "user-1", 900)
	require.NoError(t, err)

	res, err := f.manager.Reserve(ctx, "user-1", 300)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.ReservationID)
	assert.Equal(t, int64(100), res.Remaining)
	assert.Equal(t, int64(200), res.Shortfall)
	assert.Equal(t, ReasonInsufficientBudget, res.Reason)

	status, err := f.tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), status.Used, "failed reservation must not charge")
	assert.Equal(t, 0, f.manager.Pending())
}

func TestManager_ConcurrentReservations(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	results := make([]ReserveResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.manager.Reserve(ctx, "user-1", 80)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, res := range results {
		if res.Success {
			successes++
			continue
		}
		assert.Equal(t, int64(60), res.Shortfall)
		assert.Equal(t, int64(20), res.Remaining)
	}
	assert.Equal(t, 1, successes)

	status, err := f.tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), status.Used)
}

func TestManager_DoubleComplete(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, "user-1", 100)
	require.NoError(t, err)

	first, err := f.manager.Complete(ctx, res.ReservationID, 80)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := f.manager.Complete(ctx, res.ReservationID, 10)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, ReasonNotFound, second.Reason)

	status, err := f.tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), status.Used, "second completion must not mutate")
}

func TestManager_ConcurrentComplete(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, "user-1", 500)
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make([]bool, 10)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done, err := f.manager.Complete(ctx, res.ReservationID, 100)
			assert.NoError(t, err)
			outcomes[i] = done.Success
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, ok := range outcomes {
		if ok {
			settled++
		}
	}
	assert.Equal(t, 1, settled)

	status, err := f.tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), status.Used)
}

func TestManager_Cancel(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.tracker.Record(ctx, "user-1", 200)
	require.NoError(t, err)

	res, err := f.manager.Reserve(ctx, "user-1", 300)
	require.NoError(t, err)

	status, _ := f.tracker.Usage(ctx, "user-1")
	require.Equal(t, int64(500), status.Used)

	ok, err := f.manager.Cancel(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.True(t, ok)

	status, _ = f.tracker.Usage(ctx, "user-1")
	assert.Equal(t, int64(200), status.Used, "cancel must restore the counter")

	ok, err = f.manager.Cancel(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.False(t, ok, "second cancel must fail")

	done, err := f.manager.Complete(ctx, res.ReservationID, 10)
	require.NoError(t, err)
	assert.False(t, done.Success, "complete after cancel must fail")
}

func TestManager_SweepExpiresWithoutRefund(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	stale, err := f.manager.Reserve(ctx, "user-1", 400)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	fresh, err := f.manager.Reserve(ctx, "user-1", 100)
	require.NoError(t, err)

	f.clock.Advance(2*time.Minute + time.Second)
	assert.Equal(t, 1, f.manager.Sweep(f.clock.Now()))

	_, ok := f.manager.Get(stale.ReservationID)
	assert.False(t, ok)
	_, ok = f.manager.Get(fresh.ReservationID)
	assert.True(t, ok)

	status, err := f.tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), status.Used, "expired reservation keeps its charge")

	done, err := f.manager.Complete(ctx, stale.ReservationID, 10)
	require.NoError(t, err)
	assert.False(t, done.Success)
	assert.Equal(t, ReasonNotFound, done.Reason)
}

func TestManager_SettleFailureKeepsReservation(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	res, err := f.manager.Reserve(ctx, "user-1", 100)
	require.NoError(t, err)

	f.backend.Close()

	_, err = f.manager.Complete(ctx, res.ReservationID, 50)
	require.Error(t, err)
	assert.True(t, storage.ErrUnavailable.Has(err))

	_, ok := f.manager.Get(res.ReservationID)
	assert.True(t, ok, "reservation must survive a failed settlement")
}

// lostAckBackend commits the next armed update and then reports a failure.
type lostAckBackend struct {
	*storage.MemoryBackend
	armed bool
}

func (b *lostAckBackend) Update(ctx context.Context, key string, fn storage.UpdateFunc) (*storage.Record, error) {
	rec, err := b.MemoryBackend.Update(ctx, key, fn)
	if err == nil && b.armed {
		b.armed = false
		return nil, storage.ErrUnavailable.New("connection reset after commit")
	}
	return rec, err
}

func TestManager_RetryAfterAmbiguousSettleFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	backend := &lostAckBackend{MemoryBackend: storage.NewMemoryBackend()}
	tracker := budget.NewTracker(storage.NewCounters(backend, clock.Now), budget.Config{DailyLimit: 1000})
	manager := NewManager(tracker, Config{Clock: clock.Now})
	ctx := context.Background()

	res, err := manager.Reserve(ctx, "user-1", 100)
	require.NoError(t, err)

	backend.armed = true
	_, err = manager.Complete(ctx, res.ReservationID, 50)
	require.Error(t, err)

	// The refund was committed even though Complete failed.
	status, err := tracker.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), status.Used)

	// The reservation is still open, so a retry refunds a second time.
	done, err := manager.Complete(ctx, res.ReservationID, 50)
	require.NoError(t, err)
	assert.True(t, done.Success)
	assert.Equal(t, int64(0), done.TotalUsed)
}

func TestManager_InvalidUnits(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	_, err := f.manager.Reserve(ctx, "user-1", 0)
	assert.True(t, errors.Is(err, budget.ErrInvalidUnits))

	_, err = f.manager.Reserve(ctx, "user-1", -5)
	assert.True(t, errors.Is(err, budget.ErrInvalidUnits))

	res, err := f.manager.Reserve(ctx, "user-1", 10)
	require.NoError(t, err)

	_, err = f.manager.Complete(ctx, res.ReservationID, -1)
	assert.True(t, errors.Is(err, budget.ErrInvalidUnits))

	_, ok := f.manager.Get(res.ReservationID)
	assert.True(t, ok, "rejected completion must not consume the reservation")
}

func TestManager_UniqueIDs(t *testing.T) {
	f := newFixture(t, 1_000_000)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		res, err := f.manager.Reserve(ctx, "user-1", 1)
		require.NoError(t, err)
		require.False(t, seen[res.ReservationID], "duplicate id %s", res.ReservationID)
		seen[res.ReservationID] = true
	}
}
