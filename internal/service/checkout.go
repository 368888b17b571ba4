package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/config"
	"github.com/loomperapp-jpg/loomper-backend/internal/mercadopago"
	"github.com/loomperapp-jpg/loomper-backend/internal/model"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
)

type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*model.Preference, error)
}

type CheckoutService struct {
	store   repository.Store
	gateway PreferenceCreator
	catalog *config.PackageCatalog
	cfg     *config.Config
	log     *zap.Logger
}

func NewCheckoutService(store repository.Store, gateway PreferenceCreator, catalog *config.PackageCatalog, cfg *config.Config, log *zap.Logger) *CheckoutService {
	return &CheckoutService{
		store:   store,
		gateway: gateway,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
	}
}

// CreatePreference opens a provider checkout for one credit package. The metadata carries the
// credited amount (credits plus bonus) back to the webhook.
func (s *CheckoutService) CreatePreference(ctx context.Context, userID, packageID string) (*model.Preference, error) {
	if userID == "" {
		return nil, model.ErrUnauthorized
	}
	if packageID == "" {
		return nil, fmt.Errorf("package id missing: %w", model.ErrValidation)
	}
	pkg, ok := s.catalog.Get(packageID)
	if !ok {
		return nil, fmt.Errorf("package %s: %w", packageID, model.ErrNotFound)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("%d créditos", pkg.Credits)
	if pkg.BonusCredits > 0 {
		description += fmt.Sprintf(" + %d bônus", pkg.BonusCredits)
	}
	appURL := s.cfg.Server.AppURL

	pref, err := s.gateway.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items: []mercadopago.Item{{
			Title:       "Loomper - " + pkg.Name,
			Description: description,
			Quantity:    1,
			CurrencyID:  "BRL",
			UnitPrice:   pkg.Price,
		}},
		Payer: mercadopago.Payer{
			Email: user.Email,
			Name:  user.DisplayName,
		},
		BackURLs: mercadopago.BackURLs{
			Success: appURL + "/dashboard?payment=success",
			Failure: appURL + "/dashboard?payment=failure",
			Pending: appURL + "/dashboard?payment=pending",
		},
		AutoReturn:        "approved",
		ExternalReference: user.ID,
		Metadata: mercadopago.PreferenceMetadata{
			UserID:    user.ID,
			PackageID: pkg.ID,
			Credits:   pkg.TotalCredits(),
		},
		NotificationURL: s.cfg.Server.PublicURL + "/webhook/mercadopago",
	})
	if err != nil {
		if !errors.Is(err, model.ErrUpstream) {
			err = fmt.Errorf("create preference: %v: %w", err, model.ErrUpstream)
		}
		return nil, err
	}

	s.log.Info("checkout preference created",
		zap.String("user_id", user.ID),
		zap.String("package_id", pkg.ID),
		zap.String("preference_id", pref.PreferenceID),
	)
	return pref, nil
}

// Packages lists the purchasable packages, cheapest first.
func (s *CheckoutService) Packages() []model.CreditPackage {
	return s.catalog.All()
}
