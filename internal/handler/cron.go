package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

// Sweep triggers for an external scheduler. Each run holds the same lock as the
// in-process scheduler, so a concurrent trigger answers 409.

func (h *Handler) RunExpirySweep(c *fiber.Ctx) error {
	return h.runSweep(c, h.sweeps.RunExpiry)
}

func (h *Handler) RunRenewalSweep(c *fiber.Ctx) error {
	return h.runSweep(c, h.sweeps.RunRenewal)
}

func (h *Handler) RunCommissionRetries(c *fiber.Ctx) error {
	return h.runSweep(c, h.sweeps.RunCommissions)
}

func (h *Handler) runSweep(c *fiber.Ctx, run func(context.Context) (model.SweepReport, error)) error {
	report, err := run(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}
