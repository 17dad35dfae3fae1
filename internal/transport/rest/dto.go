package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// money форматирует сумму строкой с двумя знаками.
func money(d decimal.Decimal) string {
	return domain.RoundMoney(d).StringFixed(domain.MoneyPlaces)
}

type cartItemResponse struct {
	ID          int64     `json:"id"`
	Product     int64     `json:"product"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	Subtotal    string    `json:"subtotal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type cartResponse struct {
	ID         int64              `json:"id"`
	User       int64              `json:"user"`
	Items      []cartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	Total      string             `json:"total"`
}

func newCartItemResponse(item domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:          item.ID,
		Product:     item.ProductID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		Price:       money(item.Price),
		Subtotal:    money(item.Subtotal()),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func newCartResponse(c domain.Cart, userID int64) cartResponse {
	resp := cartResponse{
		ID:    c.ID,
		User:  userID,
		Items: make([]cartItemResponse, 0, len(c.Items)),
		Total: money(c.Total()),
	}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, newCartItemResponse(item))
		resp.TotalItems += item.Quantity
	}
	return resp
}

type productRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type orderItemResponse struct {
	ID        int64      `json:"id"`
	Product   productRef `json:"product"`
	Quantity  int        `json:"quantity"`
	Price     string     `json:"price"`
	Subtotal  string     `json:"subtotal"`
	CreatedAt time.Time  `json:"created_at"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Customer        int64               `json:"customer"`
	CustomerEmail   string              `json:"customer_email"`
	TotalAmount     string              `json:"total_amount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shipping_address"`
	BillingAddress  string              `json:"billing_address"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	CRMSyncStatus   string              `json:"crm_sync_status,omitempty"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Customer:        o.CustomerID,
		CustomerEmail:   o.CustomerEmail,
		TotalAmount:     money(o.TotalAmount),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentIntentID: o.PaymentIntentID,
		CRMSyncStatus:   string(o.CRMSyncStatus),
		Items:           make([]orderItemResponse, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:        item.ID,
			Product:   productRef{ID: item.ProductID, Name: item.ProductName},
			Quantity:  item.Quantity,
			Price:     money(item.Price),
			Subtotal:  money(item.Subtotal),
			CreatedAt: item.CreatedAt,
		})
	}
	return resp
}

func newOrderListResponse(orders []domain.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	return resp
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	BillingAddress  string `json:"billing_address"`
	ClearCart       *bool  `json:"clear_cart"`
}

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	ShippingAddress string             `json:"shipping_address"`
	BillingAddress  string             `json:"billing_address"`
	Items           []orderItemRequest `json:"items"`
}

type updateOrderRequest struct {
	ShippingAddress *string `json:"shipping_address"`
	BillingAddress  *string `json:"billing_address"`
	Status          *string `json:"status"`
}

type paymentSessionResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type paymentConfirmedResponse struct {
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}
