package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
)

const msgFieldRequired = "This field is required."

// pathID разбирает числовой параметр пути; нечисловой id даёт 404.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrOrderNotFound
	}
	return id, nil
}

func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return domain.NewValidationError("", "Malformed request body")
		}
		return err
	}
	return nil
}

func (s *Server) getCart(c echo.Context) error {
	actor := actorFrom(c)
	cart, err := s.cart.Get(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCartResponse(cart, actor.UserID))
}

func (s *Server) addCartItem(c echo.Context) error {
	var req cartItemRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ProductID <= 0 {
		return domain.NewValidationError("product_id", msgFieldRequired)
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	item, err := s.cart.AddItem(c.Request().Context(), actorFrom(c), req.ProductID, qty)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newCartItemResponse(item))
}

func (s *Server) clearCart(c echo.Context) error {
	if err := s.cart.Clear(c.Request().Context(), actorFrom(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Cart cleared successfully"})
}

// replaceCartItem — PUT: количество обязательно.
func (s *Server) replaceCartItem(c echo.Context) error {
	return s.updateCartItem(c, true)
}

// patchCartItem — PATCH: без количества позиция не меняется.
func (s *Server) patchCartItem(c echo.Context) error {
	return s.updateCartItem(c, false)
}

func (s *Server) updateCartItem(c echo.Context, requireQuantity bool) error {
	itemID, err := pathID(c, "id")
	if err != nil {
		return domain.ErrCartItemNotFound
	}
	var req quantityRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if requireQuantity && req.Quantity == nil {
		return domain.NewValidationError("quantity", msgFieldRequired)
	}

	item, err := s.cart.UpdateItem(c.Request().Context(), actorFrom(c), itemID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newCartItemResponse(item))
}

func (s *Server) removeCartItem(c echo.Context) error {
	itemID, err := pathID(c, "id")
	if err != nil {
		return domain.ErrCartItemNotFound
	}
	if err := s.cart.RemoveItem(c.Request().Context(), actorFrom(c), itemID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Cart item removed successfully"})
}

func (s *Server) checkout(c echo.Context) error {
	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	order, err := s.cart.Checkout(c.Request().Context(), actorFrom(c), cart.CheckoutInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ClearCart:       req.ClearCart,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newOrderResponse(order))
}
