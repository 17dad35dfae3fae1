package rest

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

func (s *Server) listOrders(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return domain.NewValidationError("limit", "A valid integer is required.")
		}
		limit = parsed
	}

	orders, err := s.orders.List(c.Request().Context(), actorFrom(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderListResponse(orders))
}

func (s *Server) createOrder(c echo.Context) error {
	var req createOrderRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	in := order.CreateInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Items:           make([]order.ItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, order.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	created, err := s.orders.Create(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newOrderResponse(created))
}

func (s *Server) getOrder(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	found, err := s.orders.Get(c.Request().Context(), actorFrom(c), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(found))
}

func (s *Server) updateOrder(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	in := order.UpdateInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	}
	if req.Status != nil {
		status := domain.OrderStatus(*req.Status)
		in.Status = &status
	}

	updated, err := s.orders.Update(c.Request().Context(), actorFrom(c), orderID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(updated))
}

func (s *Server) deleteOrder(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.orders.Delete(c.Request().Context(), actorFrom(c), orderID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Order deleted successfully"})
}

func (s *Server) orderTimeline(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	events, err := s.orders.Timeline(c.Request().Context(), actorFrom(c), orderID)
	if err != nil {
		return err
	}

	resp := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, timelineEventResponse{Type: ev.Type, Reason: ev.Reason, Occurred: ev.Occurred})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) addOrderItem(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req orderItemRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ProductID <= 0 {
		return domain.NewValidationError("product_id", msgFieldRequired)
	}

	updated, err := s.orders.AddItem(c.Request().Context(), actorFrom(c), orderID, order.ItemInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newOrderResponse(updated))
}

func (s *Server) updateOrderItem(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		return domain.ErrOrderItemNotFound
	}
	var req quantityRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.Quantity == nil {
		return domain.NewValidationError("quantity", msgFieldRequired)
	}

	updated, err := s.orders.UpdateItemQuantity(c.Request().Context(), actorFrom(c), orderID, itemID, *req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(updated))
}

func (s *Server) removeOrderItem(c echo.Context) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		return domain.ErrOrderItemNotFound
	}

	updated, err := s.orders.RemoveItem(c.Request().Context(), actorFrom(c), orderID, itemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(updated))
}
