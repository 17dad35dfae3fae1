package domain

// StockEffect — складской побочный эффект перехода статуса.
type StockEffect int

const (
	// StockEffectNone — переход не двигает остатки.
	StockEffectNone StockEffect = iota
	// StockEffectRestore — вход в cancelled: каждая позиция возвращается на склад.
	StockEffectRestore
	// StockEffectRedecrement — выход из cancelled: позиции списываются повторно,
	// но только там, где остатка хватает. Позиции без остатка остаются как есть.
	StockEffectRedecrement
)

// allowedTransitions — граф переходов обычного потока.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  nil,
	OrderStatusCancelled:  nil,
}

// IsTerminal сообщает, что из статуса нет переходов в обычном потоке.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo проверяет переход по графу обычного потока.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionPlan описывает разрешённый переход и его эффект на склад.
type TransitionPlan struct {
	From    OrderStatus
	To      OrderStatus
	Effect  StockEffect
	Changed bool
}

// PlanTransition проверяет переход и вычисляет складской эффект.
// override разрешает выход из терминальных статусов (правка заказа администратором).
// Переход в тот же статус — no-op без ошибки.
func PlanTransition(from, to OrderStatus, override bool) (TransitionPlan, error) {
	if !to.Valid() {
		return TransitionPlan{}, NewValidationError("status", "\""+string(to)+"\" is not a valid choice.")
	}
	plan := TransitionPlan{From: from, To: to}
	if from == to {
		return plan, nil
	}
	if !override && !from.CanTransitionTo(to) {
		return TransitionPlan{}, ErrInvalidTransition
	}

	plan.Changed = true
	switch {
	case to == OrderStatusCancelled:
		plan.Effect = StockEffectRestore
	case from == OrderStatusCancelled:
		plan.Effect = StockEffectRedecrement
	}
	return plan, nil
}
