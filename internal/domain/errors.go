package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound возвращается, если заказ не найден или скрыт soft delete.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден или неактивен.
	ErrProductNotFound = errors.New("product not found or inactive")
	// ErrCartItemNotFound возвращается, если позиция корзины не найдена у пользователя.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrOrderItemNotFound возвращается, если позиция заказа не найдена.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrPermissionDenied — у пользователя нет прав на операцию с объектом.
	ErrPermissionDenied = errors.New("you do not have permission to access this order")
	// ErrInsufficientStock — базовая ошибка нехватки остатка, см. StockInsufficientError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCartEmpty — попытка оформить пустую корзину.
	ErrCartEmpty = errors.New("Cart is empty")
	// ErrOrderNotPending — операция разрешена только для заказов в статусе pending.
	ErrOrderNotPending = errors.New("order is not pending")
	// ErrInvalidTransition — переход статуса запрещён графом состояний.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrPaymentIntentMissing — для заказа ещё не создан payment intent.
	ErrPaymentIntentMissing = errors.New("Payment intent not found for this order")
	// ErrInvalidSignature — подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("Invalid signature")
	// ErrInvalidPayload — тело webhook не удалось разобрать.
	ErrInvalidPayload = errors.New("Invalid payload")
	// ErrGateway — базовая ошибка платёжного шлюза, см. GatewayError.
	ErrGateway = errors.New("payment gateway error")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает некорректный ввод с указанием поля.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StockInsufficientError называет товар, остатка которого не хватило.
type StockInsufficientError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockInsufficientError) Error() string {
	if e.ProductName == "" {
		return "Insufficient stock"
	}
	return fmt.Sprintf("Insufficient stock for %s", e.ProductName)
}

// Is позволяет сравнивать ошибку с ErrInsufficientStock.
func (e *StockInsufficientError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// GatewayError оборачивает ошибку вызова платёжного шлюза.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to %s", e.Op)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is позволяет сравнивать ошибку с ErrGateway.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// PaymentNotSucceededError возвращается подтверждением оплаты, когда intent ещё не оплачен.
type PaymentNotSucceededError struct {
	Status       string
	ClientSecret string
}

func (e *PaymentNotSucceededError) Error() string {
	switch e.Status {
	case IntentStatusRequiresPaymentMethod:
		return "Payment requires a payment method"
	case IntentStatusRequiresConfirmation:
		return "Payment requires confirmation"
	default:
		return fmt.Sprintf("Payment status: %s", e.Status)
	}
}

// OrderNotPendingError уточняет действие, которое покупателю доступно только для pending-заказа.
type OrderNotPendingError struct {
	Action string
}

func (e *OrderNotPendingError) Error() string {
	return fmt.Sprintf("Only pending orders can be %s", e.Action)
}

// Is позволяет сравнивать ошибку с ErrOrderNotPending.
func (e *OrderNotPendingError) Is(target error) bool {
	return target == ErrOrderNotPending
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
