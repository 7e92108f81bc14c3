package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trowool/yarnshop/internal/logging"
	"github.com/trowool/yarnshop/internal/mykafka"
	"github.com/trowool/yarnshop/internal/service/cart"
	"github.com/trowool/yarnshop/internal/service/order"
	"github.com/trowool/yarnshop/internal/service/token"
)

type CartHandler struct {
	Svc      *cart.Service
	Orders   *order.Service
	Producer *mykafka.Producer

	// Debug includes internal error detail in 5xx bodies. Off in production.
	Debug bool
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	items, err := h.Svc.GetCart(ctx, userID)
	if err != nil {
		return h.internalError(c, "cart.get", userID, 0, err)
	}

	return c.JSON(http.StatusOK, items)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint   `json:"product_id"`
		Color     string `json:"color"`
		Quantity  uint   `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ProductID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "product_id is required"})
	}
	if req.Color == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "color is required"})
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	line, err := h.Svc.AddToCart(ctx, userID, req.ProductID, req.Color, req.Quantity)
	if err != nil {
		return h.cartError(c, "cart.add", userID, req.ProductID, err)
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"color":     req.Color,
		"quantity":  line.Quantity,
	})
	return c.JSON(http.StatusCreated, line)
}

func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	itemID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	line, err := h.Svc.UpdateQuantity(ctx, userID, itemID, req.Quantity)
	if err != nil {
		return h.cartError(c, "cart.update", userID, itemID, err)
	}

	h.publish(c, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"itemID":   itemID,
		"quantity": line.Quantity,
	})
	return c.JSON(http.StatusOK, line)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	itemID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	if err := h.Svc.RemoveFromCart(ctx, userID, itemID); err != nil {
		return h.cartError(c, "cart.remove", userID, itemID, err)
	}

	h.publish(c, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"itemID": itemID,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	if err := h.Svc.ClearCart(ctx, userID); err != nil {
		return h.internalError(c, "cart.clear", userID, 0, err)
	}

	h.publish(c, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := token.CurrentUserID(c)
	if err != nil {
		return err
	}

	result, err := h.Orders.Checkout(ctx, userID)
	if err != nil {
		if errors.Is(err, order.ErrEmptyCart) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "no items in cart"})
		}
		return h.cartError(c, "cart.checkout", userID, 0, err)
	}

	pubCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	event := map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": result.OrderID,
		"total":   result.Total,
	}
	if err := h.Producer.PublishEvent(pubCtx, "order_events", fmt.Sprint(userID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
	return c.JSON(http.StatusOK, result)
}

// cartError maps the cart error taxonomy onto HTTP statuses. Business errors
// get a specific status and body; everything else is an opaque failure.
func (h *CartHandler) cartError(c echo.Context, op string, userID, subjectID uint, err error) error {
	var stockErr *cart.InsufficientStockError
	switch {
	case errors.Is(err, cart.ErrProductNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	case errors.Is(err, cart.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found in cart"})
	case errors.Is(err, cart.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": fmt.Sprintf("quantity must be between 1 and %d", cart.MaxLineQuantity),
			"field": "quantity",
		})
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "insufficient stock",
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case cart.IsTransient(err):
		logging.FromContext(c.Request().Context()).Warn("transient store error",
			"op", op, "user_id", userID, "subject_id", subjectID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporary failure, retry"})
	default:
		return h.internalError(c, op, userID, subjectID, err)
	}
}

func (h *CartHandler) internalError(c echo.Context, op string, userID, subjectID uint, err error) error {
	logging.FromContext(c.Request().Context()).Error("cart operation failed",
		"op", op, "user_id", userID, "subject_id", subjectID, "error", err)
	body := echo.Map{"error": "internal error"}
	if h.Debug {
		body["details"] = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return uint(id), nil
}
