package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store, stock int) domain.Product {
	t.Helper()
	product, err := store.Repositories().Products.Create(context.Background(), domain.Product{
		Name:          "Keyboard",
		Price:         decimal.RequireFromString("49.90"),
		StockQuantity: stock,
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func newOrder() domain.Order {
	return domain.NewOrder(domain.Actor{UserID: 1, Email: "buyer@example.com"}, "addr", "addr", time.Now().UTC())
}

func TestStore_InTxCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	product := seedProduct(t, store, 5)

	err := store.InTx(ctx, func(tx domain.Repositories) error {
		p, err := tx.Products.GetForUpdate(ctx, product.ID)
		if err != nil {
			return err
		}
		if err := p.DecrementStock(2); err != nil {
			return err
		}
		return tx.Products.UpdateStock(ctx, p.ID, p.StockQuantity)
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	stored, err := store.Repositories().Products.Get(ctx, product.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.StockQuantity != 3 {
		t.Fatalf("expected stock 3, got %d", stored.StockQuantity)
	}
}

func TestStore_InTxRollback(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	product := seedProduct(t, store, 5)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx domain.Repositories) error {
		if err := tx.Products.UpdateStock(ctx, product.ID, 0); err != nil {
			return err
		}
		order, err := tx.Orders.Create(ctx, newOrder())
		if err != nil {
			return err
		}
		if _, err := tx.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, EventType: domain.EventOrderCreated}); err != nil {
			return err
		}
		if err := tx.Timeline.Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderCreated}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	repos := store.Repositories()
	stored, _ := repos.Products.Get(ctx, product.ID)
	if stored.StockQuantity != 5 {
		t.Fatalf("rollback must keep stock 5, got %d", stored.StockQuantity)
	}
	orders, _ := repos.Orders.List(ctx, domain.OrderFilter{})
	if len(orders) != 0 {
		t.Fatalf("rollback must discard orders, got %d", len(orders))
	}
	stats, _ := repos.Outbox.Stats(ctx)
	if stats.PendingCount != 0 {
		t.Fatalf("rollback must discard outbox, got %d", stats.PendingCount)
	}
}

func TestProductRepository_Visibility(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := store.Repositories().Products

	hidden, err := repo.Create(ctx, domain.Product{Name: "Hidden", IsActive: false})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.Get(ctx, hidden.ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected not found for inactive product, got %v", err)
	}
	if err := repo.UpdateStock(ctx, hidden.ID, -1); err == nil {
		t.Fatal("expected error for negative stock")
	}
}

func TestOrderRepository_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Orders

	created, err := repo.Create(ctx, newOrder())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == 0 || created.Version != 1 {
		t.Fatalf("unexpected created order id=%d version=%d", created.ID, created.Version)
	}

	item, err := repo.AddItem(ctx, domain.OrderItem{OrderID: created.ID, ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("1.25")})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	if !item.Subtotal.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected subtotal recompute, got %s", item.Subtotal)
	}

	stored, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	stored.RecalculateTotal()
	saved, err := repo.Save(ctx, stored)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", saved.Version)
	}
	if len(saved.Items) != 1 || !saved.TotalAmount.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("unexpected saved order %+v", saved)
	}

	if _, err := repo.Save(ctx, stored); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOrderRepository_SoftDeleteHidesOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Orders

	created, err := repo.Create(ctx, newOrder())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	created.SoftDelete(time.Now().UTC())
	if _, err := repo.Save(ctx, created); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	orders, _ := repo.List(ctx, domain.OrderFilter{})
	if len(orders) != 0 {
		t.Fatalf("deleted order must not be listed, got %d", len(orders))
	}
}

func TestOrderRepository_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Orders

	base := time.Now().UTC()
	for i, customer := range []int64{1, 2, 1} {
		order := newOrder()
		order.CustomerID = customer
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	all, _ := repo.List(ctx, domain.OrderFilter{})
	if len(all) != 3 || all[0].ID != 3 || all[2].ID != 1 {
		t.Fatalf("expected created_at desc ordering, got %+v", all)
	}
	own, _ := repo.List(ctx, domain.OrderFilter{CustomerID: 1, Limit: 1})
	if len(own) != 1 || own[0].ID != 3 {
		t.Fatalf("unexpected filtered list %+v", own)
	}
}

func TestOrderRepository_ClaimPaymentIntent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Orders

	created, err := repo.Create(ctx, newOrder())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	winner, err := repo.ClaimPaymentIntent(ctx, created.ID, "pi_first")
	if err != nil || winner != "pi_first" {
		t.Fatalf("first claim: winner=%q err=%v", winner, err)
	}
	winner, err = repo.ClaimPaymentIntent(ctx, created.ID, "pi_second")
	if err != nil || winner != "pi_first" {
		t.Fatalf("second claim must keep first intent: winner=%q err=%v", winner, err)
	}

	found, err := repo.GetByPaymentIntent(ctx, "pi_first")
	if err != nil || found.ID != created.ID {
		t.Fatalf("lookup by intent failed: %v", err)
	}
	if _, err := repo.GetByPaymentIntent(ctx, ""); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("empty intent must not match, got %v", err)
	}
}

func TestCartRepository_ItemsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Carts

	empty, err := repo.GetByUser(ctx, 9)
	if err != nil || empty.ID != 0 || !empty.IsEmpty() {
		t.Fatalf("expected empty virtual cart, got %+v err=%v", empty, err)
	}

	cart, err := repo.GetOrCreate(ctx, 9)
	if err != nil {
		t.Fatalf("get or create failed: %v", err)
	}
	for _, productID := range []int64{5, 2, 7} {
		if _, err := repo.SaveItem(ctx, domain.CartItem{CartID: cart.ID, ProductID: productID, Quantity: 1}); err != nil {
			t.Fatalf("save item failed: %v", err)
		}
	}

	cart, _ = repo.GetByUser(ctx, 9)
	if len(cart.Items) != 3 || cart.Items[0].ProductID != 5 || cart.Items[2].ProductID != 7 {
		t.Fatalf("unexpected items order %+v", cart.Items)
	}

	if err := repo.DeleteItem(ctx, cart.ID, 999); !errors.Is(err, domain.ErrCartItemNotFound) {
		t.Fatalf("expected cart item not found, got %v", err)
	}
	if err := repo.Clear(ctx, cart.ID); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	cart, _ = repo.GetByUser(ctx, 9)
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart after clear, got %d items", len(cart.Items))
	}
}

func TestOutboxRepository_EnqueuePullAndMark(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Outbox

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder, EventType: domain.EventOrderCreated})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateNotification})

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected enqueue order, got %+v", pending)
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}

	stats, _ := repo.Stats(ctx)
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
