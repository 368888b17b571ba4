package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loomperapp-jpg/loomper-backend/internal/middleware"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

type walletResponse struct {
	*model.Wallet
	Total int64 `json:"total"`
}

// GetWallet handles GET /api/wallet.
func (h *Handler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	wallet, err := h.walletSvc.GetBalance(c.Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(walletResponse{Wallet: wallet, Total: wallet.Total()})
}

// GetTransactions handles GET /api/wallet/transactions?limit=&offset=.
func (h *Handler) GetTransactions(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	txs, err := h.walletSvc.GetTransactions(c.Context(), userID, limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	if txs == nil {
		txs = []model.CreditTransaction{}
	}
	return c.JSON(fiber.Map{
		"transactions": txs,
		"offset":       offset,
	})
}
