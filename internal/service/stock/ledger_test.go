package stock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type lockRecorder struct {
	domain.ProductRepository
	locked []int64
}

func (r *lockRecorder) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	r.locked = append(r.locked, id)
	return r.ProductRepository.GetForUpdate(ctx, id)
}

func seed(t *testing.T, store *memory.Store, stocks ...int) []domain.Product {
	t.Helper()
	out := make([]domain.Product, 0, len(stocks))
	for i, s := range stocks {
		p, err := store.Repositories().Products.Create(context.Background(), domain.Product{
			Name:          string(rune('A' + i)),
			Price:         decimal.NewFromInt(1),
			StockQuantity: s,
			IsActive:      true,
		})
		if err != nil {
			t.Fatalf("seed product: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func TestLock_AscendingUniqueOrder(t *testing.T) {
	store := memory.NewStore()
	products := seed(t, store, 1, 1, 1)

	rec := &lockRecorder{ProductRepository: store.Repositories().Products}
	_, err := Lock(context.Background(), rec, []int64{products[2].ID, products[0].ID, products[2].ID, products[1].ID})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	want := []int64{products[0].ID, products[1].ID, products[2].ID}
	if len(rec.locked) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.locked)
	}
	for i := range want {
		if rec.locked[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, rec.locked)
		}
	}
}

func TestLock_MissingProduct(t *testing.T) {
	store := memory.NewStore()
	repo := store.Repositories().Products

	if _, err := Lock(context.Background(), repo, []int64{42}); err == nil {
		t.Fatal("expected error for missing product")
	}

	l, err := LockAvailable(context.Background(), repo, []int64{42})
	if err != nil {
		t.Fatalf("lock available: %v", err)
	}
	if l.Restore(42, 1) {
		t.Fatal("restore must report missing product")
	}
}

func TestLedger_MutationsAndFlush(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := seed(t, store, 3, 0)
	a, b := products[0].ID, products[1].ID

	err := store.InTx(ctx, func(tx domain.Repositories) error {
		l, err := Lock(ctx, tx.Products, []int64{a, b})
		if err != nil {
			return err
		}
		if err := l.Decrement(a, 2); err != nil {
			return err
		}
		if err := l.Decrement(a, 2); err == nil {
			t.Fatal("expected insufficient stock on second decrement")
		}
		if l.TryDecrement(b, 1) {
			t.Fatal("weak decrement must skip when stock is short")
		}
		l.Restore(b, 4)
		return l.Flush(ctx)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	pa, _ := store.Repositories().Products.Get(ctx, a)
	pb, _ := store.Repositories().Products.Get(ctx, b)
	if pa.StockQuantity != 1 || pb.StockQuantity != 4 {
		t.Fatalf("unexpected stock a=%d b=%d", pa.StockQuantity, pb.StockQuantity)
	}
}

func TestLockForReturn_IncludesWithdrawnProducts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	products := seed(t, store, 2)
	hidden := products[0]
	hidden.IsDeleted = true
	if err := store.Repositories().Products.Save(ctx, hidden); err != nil {
		t.Fatalf("hide product: %v", err)
	}

	err := store.InTx(ctx, func(tx domain.Repositories) error {
		available, err := LockAvailable(ctx, tx.Products, []int64{hidden.ID})
		if err != nil {
			return err
		}
		if _, ok := available.Product(hidden.ID); ok {
			t.Fatal("catalog lock must skip withdrawn product")
		}

		l, err := LockForReturn(ctx, tx.Products, []int64{hidden.ID, 42})
		if err != nil {
			return err
		}
		if !l.Restore(hidden.ID, 3) {
			t.Fatal("restore must accept withdrawn product")
		}
		if l.Restore(42, 1) {
			t.Fatal("restore must report missing product")
		}
		return l.Flush(ctx)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	var stock int
	_ = store.InTx(ctx, func(tx domain.Repositories) error {
		p, err := tx.Products.GetAnyForUpdate(ctx, hidden.ID)
		stock = p.StockQuantity
		return err
	})
	if stock != 5 {
		t.Fatalf("expected stock 5, got %d", stock)
	}
}
