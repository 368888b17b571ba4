package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loomperapp-jpg/loomper-backend/internal/middleware"
)

type createPreferenceRequest struct {
	PackageID string `json:"package_id" validate:"required,max=64"`
}

// CreatePreference handles POST /api/checkout/preference.
func (h *Handler) CreatePreference(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}

	var req createPreferenceRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	pref, err := h.checkoutSvc.CreatePreference(c.Context(), userID, req.PackageID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pref)
}

// ListPackages handles GET /api/packages.
func (h *Handler) ListPackages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"packages": h.checkoutSvc.Packages(),
	})
}
