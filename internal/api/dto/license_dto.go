package dto

import (
	"time"

	"github.com/spec-kit/license-service/internal/domain"
)

// CreateLicenseRequest payload.
type CreateLicenseRequest struct {
	ProductName string  `json:"product_name"`
	MaxUsage    *int    `json:"max_usage"`
	ExpiresAt   *string `json:"expires_at"`
	Notes       *string `json:"notes"`
}

// UpdateLicenseRequest payload; absent fields are left unchanged.
type UpdateLicenseRequest struct {
	MaxUsage  *int    `json:"max_usage"`
	ExpiresAt *string `json:"expires_at"`
	Notes     *string `json:"notes"`
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status domain.LicenseStatus `json:"status"`
}

// LicenseResponse is the full license representation. Status carries the
// stored value; EffectiveStatus the derived one shown to readers.
type LicenseResponse struct {
	ID              string               `json:"id"`
	Key             string               `json:"key"`
	ProductName     string               `json:"product_name"`
	Status          domain.LicenseStatus `json:"status"`
	EffectiveStatus domain.LicenseStatus `json:"effective_status"`
	UserEmail       *string              `json:"user_email,omitempty"`
	UsageCount      int                  `json:"usage_count"`
	MaxUsage        *int                 `json:"max_usage,omitempty"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// RedeemRequest payload for the public redemption endpoint.
type RedeemRequest struct {
	Key       string  `json:"key"`
	UserEmail *string `json:"user_email"`
}

// RedeemResponse reports the adjudication outcome.
type RedeemResponse struct {
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	UsageCount int    `json:"usage_count,omitempty"`
	MaxUsage   *int   `json:"max_usage,omitempty"`
}
