package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/service"
)

// The endpoints below are called by other Loomper services behind InternalKey.

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req model.CreateUserRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	user, err := h.userSvc.CreateUser(c.Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	user, err := h.userSvc.GetUser(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

type activeReferralsRequest struct {
	Count *int `json:"count" validate:"required,gte=0"`
}

func (h *Handler) SetActiveReferrals(c *fiber.Ctx) error {
	var req activeReferralsRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	userID := c.Params("id")
	if err := h.userSvc.SetActiveReferralCount(c.Context(), userID, *req.Count); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"count":   *req.Count,
	})
}

func (h *Handler) EnrollCampaign(c *fiber.Ctx) error {
	var req model.CampaignEnrollment
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	user, err := h.campaignSvc.Enroll(c.Context(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

func (h *Handler) RecordUsage(c *fiber.Ctx) error {
	var req service.UsageRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}

	wallet, err := h.walletSvc.RecordUsage(c.Context(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(walletResponse{Wallet: wallet, Total: wallet.Total()})
}
