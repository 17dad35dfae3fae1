package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedKeys(t *testing.T, repo domain.IdempotencyRepository, n int, ttlAt time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d-%d", i, ttlAt.UnixNano())
		if _, err := repo.CreateProcessing(context.Background(), key, "hash", ttlAt); err != nil {
			t.Fatalf("seed key: %v", err)
		}
	}
}

func TestSweeper_SweepRemovesOnlyExpiredInBatches(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	repo := memory.NewIdempotencyRepository()
	seedKeys(t, repo, 5, now.Add(-time.Minute))
	seedKeys(t, repo, 2, now.Add(time.Hour))

	sweeper := NewSweeper(repo, 0, 2, nil, nil)
	deleted, err := sweeper.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted=%d want=5", deleted)
	}

	again, err := sweeper.Sweep(context.Background(), now)
	if err != nil || again != 0 {
		t.Fatalf("second sweep deleted=%d err=%v", again, err)
	}
}

type failingRepo struct {
	domain.IdempotencyRepository
}

func (failingRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, errors.New("db down")
}

func TestSweeper_SweepReturnsRepoError(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(failingRepo{}, 0, 10, nil, nil)
	if _, err := sweeper.Sweep(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(memory.NewIdempotencyRepository(), 5*time.Millisecond, 10, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
