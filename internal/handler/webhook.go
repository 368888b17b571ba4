package handler

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/service"
)

type mercadoPagoNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// rawID accepts both numeric and string ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func parseNotification(c *fiber.Ctx) (service.Notification, error) {
	var n service.Notification
	if body := c.Body(); len(body) > 0 {
		var payload mercadoPagoNotification
		if err := json.Unmarshal(body, &payload); err != nil {
			return n, err
		}
		n.Type = payload.Type
		n.Action = payload.Action
		n.PaymentID = rawID(payload.Data.ID)
	}

	// Legacy IPN style notifications only carry query parameters.
	if n.Type == "" {
		n.Type = c.Query("type", c.Query("topic"))
	}
	if n.PaymentID == "" {
		n.PaymentID = c.Query("data.id", c.Query("id"))
	}
	return n, nil
}

// MercadoPagoWebhook handles POST /webhook/mercadopago.
// Anything that will never succeed on redelivery is acknowledged with 200.
func (h *Handler) MercadoPagoWebhook(c *fiber.Ctx) error {
	n, err := parseNotification(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid notification body",
		})
	}

	result, err := h.paymentSvc.HandleNotification(c.Context(), n)
	if err != nil {
		h.log.Warn("payment notification failed",
			zap.String("payment_id", n.PaymentID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNotFound):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, model.ErrDuplicate):
			return c.JSON(fiber.Map{"status": string(service.NotificationAlreadyCredited)})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "payment processing failed",
		})
	}

	return c.JSON(fiber.Map{
		"status": string(result),
	})
}
