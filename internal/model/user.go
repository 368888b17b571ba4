package model

import (
	"time"
)

type CampaignTier string

const (
	CampaignTierFounder      CampaignTier = "founder"
	CampaignTierPioneer      CampaignTier = "pioneer"
	CampaignTierEarlyAdopter CampaignTier = "early_adopter"
)

type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusExpired CampaignStatus = "expired"
)

type User struct {
	ID                  string          `json:"id" db:"id"`
	Email               string          `json:"email" db:"email"`
	DisplayName         string          `json:"display_name" db:"display_name"`
	ReferredBy          *string         `json:"referred_by,omitempty" db:"referred_by"`
	IsFirstPurchase     bool            `json:"is_first_purchase" db:"is_first_purchase"`
	ActiveReferralCount int             `json:"active_referral_count" db:"active_referral_count"`
	CampaignTier        *CampaignTier   `json:"campaign_tier,omitempty" db:"campaign_tier"`
	CampaignStartDate   *time.Time      `json:"campaign_start_date,omitempty" db:"campaign_start_date"`
	CampaignEndDate     *time.Time      `json:"campaign_end_date,omitempty" db:"campaign_end_date"`
	CampaignStatus      *CampaignStatus `json:"campaign_status,omitempty" db:"campaign_status"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// HasActiveCampaign reports whether the user is enrolled in a campaign that has not been expired yet.
func (u *User) HasActiveCampaign() bool {
	return u.CampaignStatus != nil && *u.CampaignStatus == CampaignStatusActive
}

// CampaignEnded reports whether the membership window is missing or already over at now.
func (u *User) CampaignEnded(now time.Time) bool {
	if u.CampaignStartDate == nil || u.CampaignEndDate == nil {
		return true
	}
	return now.After(*u.CampaignEndDate)
}

type CreateUserRequest struct {
	ID          string  `json:"id" validate:"required,max=128"`
	Email       string  `json:"email" validate:"omitempty,email"`
	DisplayName string  `json:"display_name" validate:"max=200"`
	ReferredBy  *string `json:"referred_by,omitempty" validate:"omitempty,max=128"`
}

type CampaignEnrollment struct {
	Tier      CampaignTier `json:"tier" validate:"required"`
	StartDate time.Time    `json:"start_date" validate:"required"`
	EndDate   time.Time    `json:"end_date" validate:"required,gtfield=StartDate"`
}
