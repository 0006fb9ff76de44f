package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/internal/errs"
	"github.com/Astemirdum/circulation-service/circulation/internal/repository"
	"github.com/Astemirdum/circulation-service/circulation/internal/service"
	"github.com/stretchr/testify/require"
)

// conflictingRepo loses the first n counter swaps as if another writer got there first.
type conflictingRepo struct {
	repository.Repository
	remaining *int32
	swaps     *int32
}

func newConflictingRepo(n int32) conflictingRepo {
	var swaps int32
	return conflictingRepo{
		Repository: repository.NewMemoryRepository(),
		remaining:  &n,
		swaps:      &swaps,
	}
}

func (r conflictingRepo) WithTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return r.Repository.WithTx(ctx, func(tx repository.Repository) error {
		return fn(conflictingRepo{Repository: tx, remaining: r.remaining, swaps: r.swaps})
	})
}

func (r conflictingRepo) SwapCopies(ctx context.Context, id string, version int64, total, available int) error {
	atomic.AddInt32(r.swaps, 1)
	if atomic.AddInt32(r.remaining, -1) >= 0 {
		return errs.ErrConcurrencyConflict
	}
	return r.Repository.SwapCopies(ctx, id, version, total, available)
}

func TestAdjustAvailable_Bounds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)

	_, err := f.svc.AdjustAvailable(ctx, book.ID, 1)
	require.ErrorIs(t, err, errs.ErrInventoryInconsistent)

	n, err := f.svc.AdjustAvailable(ctx, book.ID, -2)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = f.svc.AdjustAvailable(ctx, book.ID, -1)
	require.ErrorIs(t, err, errs.ErrOutOfStock)
	require.Equal(t, 0, f.book(t, book.ID).AvailableCopies)

	n, err = f.svc.AdjustAvailable(ctx, book.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.svc.AdjustAvailable(ctx, "no-such-book", -1)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAdjustAvailable_PublishesWhenReopened(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 2)

	_, err := f.svc.AdjustAvailable(ctx, book.ID, -2)
	require.NoError(t, err)
	require.Empty(t, f.pub.Events())

	_, err = f.svc.AdjustAvailable(ctx, book.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AdjustAvailable(ctx, book.ID, 1)
	require.NoError(t, err)

	events := f.pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, book.ID, events[0].BookID)
	require.Equal(t, 1, events[0].AvailableCopies)
	require.Equal(t, 2, events[0].TotalCopies)
	require.Equal(t, f.clock.Now(), events[0].OccurredAt)
}

func TestResizeTotal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		total         int
		loaned        int
		newTotal      int
		wantAvailable int
		wantErr       error
	}{
		{name: "grow", total: 3, loaned: 1, newTotal: 5, wantAvailable: 4},
		{name: "shrink within free copies", total: 5, loaned: 2, newTotal: 3, wantAvailable: 1},
		{name: "shrink below loaned copies clamps at zero", total: 3, loaned: 3, newTotal: 1, wantAvailable: 0},
		{name: "shrink to zero", total: 2, loaned: 0, newTotal: 0, wantAvailable: 0},
		{name: "unchanged", total: 2, loaned: 1, newTotal: 2, wantAvailable: 1},
		{name: "negative total", total: 2, newTotal: -1, wantErr: errs.ErrInvalidArgument},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			book := f.addBook(t, tt.total)
			for i := 0; i < tt.loaned; i++ {
				_, err := f.svc.AdjustAvailable(context.Background(), book.ID, -1)
				require.NoError(t, err)
			}

			got, err := f.svc.ResizeTotal(context.Background(), book.ID, tt.newTotal)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, tt.total, f.book(t, book.ID).TotalCopies)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantAvailable, got)

			stored := f.book(t, book.ID)
			require.Equal(t, tt.newTotal, stored.TotalCopies)
			require.Equal(t, tt.wantAvailable, stored.AvailableCopies)
			require.LessOrEqual(t, stored.AvailableCopies, stored.TotalCopies)
		})
	}
}

func TestAdjustAvailable_RetriesConflicts(t *testing.T) {
	t.Parallel()
	repo := newConflictingRepo(0)
	f := newFixtureWithRepo(t, repo, service.WithPolicy(service.Policy{RetryBaseDelay: time.Millisecond}))
	book := f.addBook(t, 3)

	atomic.StoreInt32(repo.remaining, 2)
	atomic.StoreInt32(repo.swaps, 0)

	n, err := f.svc.AdjustAvailable(context.Background(), book.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.EqualValues(t, 3, atomic.LoadInt32(repo.swaps))
	require.Equal(t, 2, f.book(t, book.ID).AvailableCopies)
}

func TestAdjustAvailable_RetriesExhausted(t *testing.T) {
	t.Parallel()
	repo := newConflictingRepo(0)
	f := newFixtureWithRepo(t, repo, service.WithPolicy(service.Policy{
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}))
	book := f.addBook(t, 1)

	atomic.StoreInt32(repo.remaining, 100)
	atomic.StoreInt32(repo.swaps, 0)

	_, err := f.svc.AdjustAvailable(context.Background(), book.ID, -1)
	require.ErrorIs(t, err, errs.ErrConcurrencyConflict)
	require.EqualValues(t, 3, atomic.LoadInt32(repo.swaps))
	require.Equal(t, 1, f.book(t, book.ID).AvailableCopies)
}
