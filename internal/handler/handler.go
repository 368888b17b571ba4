package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
	"github.com/loomperapp-jpg/loomper-backend/internal/service"
)

type Handler struct {
	store       repository.Store
	userSvc     *service.UserService
	walletSvc   *service.WalletService
	paymentSvc  *service.PaymentService
	checkoutSvc *service.CheckoutService
	campaignSvc *service.CampaignService
	sweeps      *service.SweepRunner
	validate    *validator.Validate
	log         *zap.Logger
}

func New(
	store repository.Store,
	userSvc *service.UserService,
	walletSvc *service.WalletService,
	paymentSvc *service.PaymentService,
	checkoutSvc *service.CheckoutService,
	campaignSvc *service.CampaignService,
	sweeps *service.SweepRunner,
	log *zap.Logger,
) *Handler {
	return &Handler{
		store:       store,
		userSvc:     userSvc,
		walletSvc:   walletSvc,
		paymentSvc:  paymentSvc,
		checkoutSvc: checkoutSvc,
		campaignSvc: campaignSvc,
		sweeps:      sweeps,
		validate:    validator.New(),
		log:         log,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.store.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  "database unreachable",
		})
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// errorStatus maps ledger error classes to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrDuplicate), errors.Is(err, service.ErrSweepInProgress):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrInsufficientCredits):
		return fiber.StatusPaymentRequired
	case errors.Is(err, model.ErrUpstream):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{
			"error": "internal error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// bind parses the JSON body into dst and runs struct validation on it.
// Failures wrap model.ErrValidation so fail renders them as 400.
func (h *Handler) bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", model.ErrValidation)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", model.ErrValidation, err.Error())
	}
	return nil
}
