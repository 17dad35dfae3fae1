package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestPlanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		from, to domain.OrderStatus
		override bool
		effect   domain.StockEffect
		changed  bool
		wantErr  error
	}{
		{name: "pending to processing", from: domain.OrderStatusPending, to: domain.OrderStatusProcessing, changed: true},
		{name: "pending to completed", from: domain.OrderStatusPending, to: domain.OrderStatusCompleted, changed: true},
		{name: "pending to cancelled restores", from: domain.OrderStatusPending, to: domain.OrderStatusCancelled, effect: domain.StockEffectRestore, changed: true},
		{name: "processing to cancelled restores", from: domain.OrderStatusProcessing, to: domain.OrderStatusCancelled, effect: domain.StockEffectRestore, changed: true},
		{name: "same status is noop", from: domain.OrderStatusCompleted, to: domain.OrderStatusCompleted},
		{name: "cancelled same status noop", from: domain.OrderStatusCancelled, to: domain.OrderStatusCancelled},
		{name: "processing back to pending", from: domain.OrderStatusProcessing, to: domain.OrderStatusPending, wantErr: domain.ErrInvalidTransition},
		{name: "completed is terminal", from: domain.OrderStatusCompleted, to: domain.OrderStatusCancelled, wantErr: domain.ErrInvalidTransition},
		{name: "cancelled is terminal", from: domain.OrderStatusCancelled, to: domain.OrderStatusPending, wantErr: domain.ErrInvalidTransition},
		{name: "override leaves cancelled", from: domain.OrderStatusCancelled, to: domain.OrderStatusPending, override: true, effect: domain.StockEffectRedecrement, changed: true},
		{name: "override completed to cancelled", from: domain.OrderStatusCompleted, to: domain.OrderStatusCancelled, override: true, effect: domain.StockEffectRestore, changed: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			plan, err := domain.PlanTransition(tc.from, tc.to, tc.override)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if plan.Effect != tc.effect {
				t.Fatalf("expected effect %v, got %v", tc.effect, plan.Effect)
			}
			if plan.Changed != tc.changed {
				t.Fatalf("expected changed=%v, got %v", tc.changed, plan.Changed)
			}
		})
	}
}

func TestPlanTransition_UnknownStatus(t *testing.T) {
	t.Parallel()

	_, err := domain.PlanTransition(domain.OrderStatusPending, "shipped", true)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validation.Field != "status" {
		t.Fatalf("expected field status, got %q", validation.Field)
	}
}
