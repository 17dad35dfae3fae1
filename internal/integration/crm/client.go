// Package crm синхронизирует оплаченные заказы с внешней CRM по HTTP.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// DefaultEndpoint — адрес CRM по умолчанию.
	DefaultEndpoint = "https://dummyjson.com/posts/add"
	// DefaultTimeout ограничивает один вызов CRM.
	DefaultTimeout = 10 * time.Second
)

// Payload — тело запроса в CRM.
type Payload struct {
	Title  string `json:"title"`
	UserID int64  `json:"userId"`
	Body   string `json:"body"`
}

// Client реализует domain.CRMSyncer.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	logger   *log.Entry
	metrics  *metrics.ShopMetrics
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент (тесты, прокси).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout задаёт таймаут одного вызова. Действует и на клиента из WithHTTPClient,
// не изменяя его.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New создаёт клиента CRM. Пустой endpoint заменяется DefaultEndpoint.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		logger:   log.WithField("component", "crm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildPayload формирует тело запроса по заказу.
func BuildPayload(order domain.Order) Payload {
	return Payload{
		Title:  fmt.Sprintf("Order %s - %s", order.OrderNumber, order.CustomerEmail),
		UserID: order.CustomerID,
		Body: fmt.Sprintf("Order ID: %d, Amount: $%s, Customer: %s, Status: %s",
			order.ID, order.TotalAmount.StringFixed(domain.MoneyPlaces), order.CustomerEmail, order.Status),
	}
}

// Sync отправляет заказ в CRM. Успех — только HTTP 200 или 201; ошибки не пробрасываются.
func (c *Client) Sync(ctx context.Context, order domain.Order) domain.CRMSyncStatus {
	status := c.send(ctx, order)
	c.metrics.RecordCRMSync(string(status))
	return status
}

func (c *Client) send(ctx context.Context, order domain.Order) domain.CRMSyncStatus {
	logger := c.logger.WithField("order_id", order.ID)

	body, err := json.Marshal(BuildPayload(order))
	if err != nil {
		logger.WithError(err).Warn("crm payload marshal failed")
		return domain.CRMSyncFailed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		logger.WithError(err).Warn("crm request build failed")
		return domain.CRMSyncFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithError(err).Warn("crm request failed")
		return domain.CRMSyncFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		logger.WithField("http_status", resp.StatusCode).Warn("crm rejected order")
		return domain.CRMSyncFailed
	}
	return domain.CRMSyncSuccess
}

var _ domain.CRMSyncer = (*Client)(nil)
