package rest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	msgNotFound         = "Not found."
	msgPermissionDenied = "You do not have permission to access this order."
	msgInternal         = "Internal server error"
)

// errorResponse переводит ошибку в HTTP-статус и тело ответа.
func errorResponse(err error) (int, any) {
	var (
		validation   *domain.ValidationError
		stock        *domain.StockInsufficientError
		notSucceeded *domain.PaymentNotSucceededError
		gateway      *domain.GatewayError
		notPending   *domain.OrderNotPendingError
		httpErr      *echo.HTTPError
	)

	switch {
	case errors.As(err, &validation):
		if validation.Field == "" {
			return http.StatusBadRequest, echo.Map{"error": validation.Message}
		}
		return http.StatusBadRequest, echo.Map{validation.Field: []string{validation.Message}}
	case errors.As(err, &stock):
		return http.StatusBadRequest, echo.Map{"error": stock.Error()}
	case errors.As(err, &notSucceeded):
		return http.StatusBadRequest, echo.Map{"error": notSucceeded.Error(), "client_secret": notSucceeded.ClientSecret}
	case errors.As(err, &gateway):
		return http.StatusBadRequest, echo.Map{"error": gateway.Error()}
	case errors.As(err, &notPending):
		return http.StatusBadRequest, echo.Map{"error": notPending.Error()}
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden, echo.Map{"detail": msgPermissionDenied}
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrOrderItemNotFound):
		return http.StatusNotFound, echo.Map{"detail": msgNotFound}
	case errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrPaymentIntentMissing),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest, echo.Map{"error": err.Error()}
	case errors.Is(err, idempotency.ErrKeyReused),
		errors.Is(err, idempotency.ErrInProgress),
		errors.Is(err, domain.ErrOrderVersionConflict):
		return http.StatusConflict, echo.Map{"error": err.Error()}
	case errors.As(err, &httpErr):
		return httpErr.Code, echo.Map{"detail": httpErr.Message}
	default:
		return http.StatusInternalServerError, echo.Map{"error": msgInternal}
	}
}

// handleError — централизованный обработчик ошибок echo.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		loggerFrom(c).WithError(err).Warn("failed to write error response")
	}
}
