package domain

import (
	"context"
	"time"
)

// ProductRepository — доступ к каталогу и складским остаткам.
// Get и GetForUpdate возвращают только видимые товары, иначе ErrProductNotFound.
type ProductRepository interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	// GetForUpdate блокирует строку товара до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	// GetAnyForUpdate блокирует строку товара без фильтра видимости.
	// Нужен возврату остатков: снятый с продажи товар всё ещё принимает их обратно.
	GetAnyForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateStock(ctx context.Context, id int64, stock int) error
	// Save обновляет карточку товара: название, цену, остаток и флаги видимости.
	Save(ctx context.Context, product Product) error
}

// CartRepository хранит корзины пользователей. Позиции возвращаются в порядке добавления.
type CartRepository interface {
	// GetByUser возвращает корзину пользователя; если её нет — пустую корзину с ID 0.
	GetByUser(ctx context.Context, userID int64) (Cart, error)
	GetOrCreate(ctx context.Context, userID int64) (Cart, error)
	// SaveItem вставляет позицию (ID == 0) либо обновляет существующую.
	SaveItem(ctx context.Context, item CartItem) (CartItem, error)
	DeleteItem(ctx context.Context, cartID, itemID int64) error
	Clear(ctx context.Context, cartID int64) error
}

// OrderFilter ограничивает выборку заказов. CustomerID == 0 — все заказы.
type OrderFilter struct {
	CustomerID int64
	Limit      int
}

// OrderRepository описывает требования к хранилищу заказов.
// Все чтения применяют фильтр видимости (is_active и не удалён).
type OrderRepository interface {
	// Create сохраняет оболочку заказа без позиций, присваивает ID и версию.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// GetForUpdate блокирует строку заказа до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (Order, error)
	// List возвращает заказы по убыванию created_at.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save сохраняет шапку заказа с учётом optimistic locking и возвращает новую версию.
	Save(ctx context.Context, order Order) (Order, error)
	// ClaimPaymentIntent записывает intent, только если у заказа его ещё нет.
	// Возвращает идентификатор, который в итоге закреплён за заказом.
	ClaimPaymentIntent(ctx context.Context, orderID int64, intentID string) (string, error)
	// ClaimPaymentCustomer работает так же для идентификатора покупателя у провайдера.
	ClaimPaymentCustomer(ctx context.Context, orderID int64, customerID string) (string, error)
	SetCRMSyncStatus(ctx context.Context, orderID int64, status CRMSyncStatus) error
	AddItem(ctx context.Context, item OrderItem) (OrderItem, error)
	UpdateItem(ctx context.Context, item OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID int64) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID int64) ([]TimelineEvent, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Repositories — набор репозиториев, привязанных к одной транзакции
// (или к autocommit-соединению вне транзакции).
type Repositories struct {
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
	Timeline TimelineRepository
	Outbox   OutboxRepository
}

// Store — единица работы над хранилищем.
type Store interface {
	// Repositories возвращает репозитории вне транзакции (каждый вызов — autocommit).
	Repositories() Repositories
	// InTx выполняет fn в одной транзакции: ошибка fn откатывает все записи.
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}

// CRMSyncer отправляет завершённый заказ во внешнюю CRM. Ошибки не пробрасываются.
type CRMSyncer interface {
	Sync(ctx context.Context, order Order) CRMSyncStatus
}

// NotificationKind — тип письма покупателю.
type NotificationKind string

const (
	NotificationOrderConfirmation   NotificationKind = "order_confirmation"
	NotificationStatusUpdate        NotificationKind = "status_update"
	NotificationPaymentConfirmation NotificationKind = "payment_confirmation"
)

// Notification — запрос на письмо покупателю. PreviousStatus заполняется для status_update.
type Notification struct {
	Kind           NotificationKind
	Order          Order
	PreviousStatus OrderStatus
}

// Notifier ставит письмо покупателю в очередь. Возвращает false при неудаче,
// триггерная операция при этом не прерывается.
type Notifier interface {
	Notify(ctx context.Context, outbox OutboxRepository, n Notification) bool
}

// Outbox: типы агрегатов и событий.
const (
	AggregateOrder        = "order"
	AggregateNotification = "notification"

	EventOrderCreated          = "OrderCreated"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderPaymentConfirmed = "OrderPaymentConfirmed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
