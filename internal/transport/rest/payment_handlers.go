package rest

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	headerStripeSignature = "Stripe-Signature"
	maxWebhookBody        = 1 << 20
)

func (s *Server) createPayment(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	session, err := s.payments.CreatePayment(c.Request().Context(), actorFrom(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, paymentSessionResponse{
		ClientSecret:    session.ClientSecret,
		PaymentIntentID: session.PaymentIntentID,
	})
}

func (s *Server) confirmPayment(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	confirmed, err := s.payments.ConfirmPayment(c.Request().Context(), actorFrom(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, paymentConfirmedResponse{
		Message: "Payment confirmed successfully",
		Order:   newOrderResponse(confirmed),
	})
}

// stripeWebhook принимает события провайдера без аутентификации; подлинность
// проверяется подписью. Внутренние ошибки отдают 500, чтобы провайдер повторил доставку.
func (s *Server) stripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return domain.ErrInvalidPayload
	}

	outcome, err := s.payments.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get(headerStripeSignature))
	if err != nil {
		loggerFrom(c).WithError(err).WithField("outcome", outcome).Warn("webhook not processed")
		return err
	}

	loggerFrom(c).WithField("outcome", outcome).Debug("webhook processed")
	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}
