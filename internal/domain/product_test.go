package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestProductStockLedger(t *testing.T) {
	t.Parallel()

	product := domain.Product{ID: 1, Name: "Mouse", Price: decimal.NewFromInt(10), StockQuantity: 5, IsActive: true}

	if err := product.DecrementStock(3); err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if product.StockQuantity != 2 {
		t.Fatalf("expected stock 2, got %d", product.StockQuantity)
	}

	err := product.DecrementStock(3)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *domain.StockInsufficientError
	if !errors.As(err, &stockErr) || stockErr.ProductName != "Mouse" || stockErr.Available != 2 {
		t.Fatalf("unexpected stock error: %#v", err)
	}
	if product.StockQuantity != 2 {
		t.Fatalf("failed decrement must not change stock, got %d", product.StockQuantity)
	}

	if product.TryDecrementStock(5) {
		t.Fatal("weak decrement must skip when stock is insufficient")
	}
	if !product.TryDecrementStock(2) || product.StockQuantity != 0 {
		t.Fatalf("weak decrement failed, stock=%d", product.StockQuantity)
	}

	product.RestoreStock(4)
	product.RestoreStock(-1)
	if product.StockQuantity != 4 {
		t.Fatalf("expected stock 4 after restore, got %d", product.StockQuantity)
	}
}

func TestProductVisible(t *testing.T) {
	t.Parallel()

	cases := []struct {
		active, deleted, want bool
	}{
		{active: true, deleted: false, want: true},
		{active: false, deleted: false, want: false},
		{active: true, deleted: true, want: false},
	}
	for _, tc := range cases {
		p := domain.Product{IsActive: tc.active, IsDeleted: tc.deleted}
		if got := p.Visible(); got != tc.want {
			t.Fatalf("active=%v deleted=%v: visible=%v, want %v", tc.active, tc.deleted, got, tc.want)
		}
	}
}

func TestCartMergeLine(t *testing.T) {
	t.Parallel()

	cart := domain.Cart{ID: 3, UserID: 7}
	product := domain.Product{ID: 1, Name: "Mouse", Price: decimal.RequireFromString("10.00")}

	line := cart.MergeLine(product, 2, testNow)
	line.ID = 1
	cart.Items = append(cart.Items, line)

	product.Price = decimal.RequireFromString("12.50")
	merged := cart.MergeLine(product, 1, testNow)
	if merged.ID != 1 || merged.Quantity != 3 {
		t.Fatalf("expected merged line id=1 qty=3, got id=%d qty=%d", merged.ID, merged.Quantity)
	}
	if !merged.Price.Equal(product.Price) {
		t.Fatalf("expected latest price snapshot, got %s", merged.Price)
	}
	if !merged.Subtotal().Equal(decimal.RequireFromString("37.50")) {
		t.Fatalf("unexpected subtotal %s", merged.Subtotal())
	}
}
