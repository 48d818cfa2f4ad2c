package events

import (
	"time"

	"github.com/spec-kit/license-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLicenseCreated       EventType = "license_created"
	EventLicenseRedeemed      EventType = "license_redeemed"
	EventLicenseStatusChanged EventType = "license_status_changed"
	EventLicenseUpdated       EventType = "license_updated"
	EventLicenseDeleted       EventType = "license_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type     domain.SubjectType `json:"type"`
	SellerID *string            `json:"seller_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	LicenseID string      `json:"license_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LicenseCreatedPayload payload.
type LicenseCreatedPayload struct {
	Key         string     `json:"key"`
	ProductName string     `json:"product_name"`
	MaxUsage    *int       `json:"max_usage,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// LicenseRedeemedPayload payload.
type LicenseRedeemedPayload struct {
	Key        string  `json:"key"`
	UsageCount int     `json:"usage_count"`
	MaxUsage   *int    `json:"max_usage,omitempty"`
	UserEmail  *string `json:"user_email,omitempty"`
	Exhausted  bool    `json:"exhausted"`
}

// LicenseStatusChangedPayload payload.
type LicenseStatusChangedPayload struct {
	OldStatus domain.LicenseStatus `json:"old_status"`
	NewStatus domain.LicenseStatus `json:"new_status"`
}

// LicenseUpdatedPayload payload.
type LicenseUpdatedPayload struct {
	MaxUsage  *int       `json:"max_usage,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// LicenseDeletedPayload payload.
type LicenseDeletedPayload struct {
	Key         string `json:"key"`
	ProductName string `json:"product_name"`
}
