package domain

import "time"

// Типы событий timeline заказа.
const (
	TimelineOrderCreated                = "OrderCreated"
	TimelineStatusChanged               = "StatusChanged"
	TimelineItemAdded                   = "ItemAdded"
	TimelineItemUpdated                 = "ItemUpdated"
	TimelineItemRemoved                 = "ItemRemoved"
	TimelineStockNotRestored            = "StockNotRedecremented"
	TimelinePaymentIntentCreated        = "PaymentIntentCreated"
	TimelinePaymentSucceededAfterCancel = "PaymentSucceededAfterCancel"
	TimelineCRMSync                     = "CRMSync"
	TimelineOrderDeleted                = "OrderDeleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  int64
	Type     string
	Reason   string
	Occurred time.Time
}
