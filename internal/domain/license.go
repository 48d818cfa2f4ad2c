package domain

import "time"

// LicenseStatus enumerates stored license states.
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusExpired LicenseStatus = "expired"
	LicenseStatusBanned  LicenseStatus = "banned"
	LicenseStatusPending LicenseStatus = "pending"
)

// IsValid reports whether the value is a known license status.
func (s LicenseStatus) IsValid() bool {
	switch s {
	case LicenseStatusActive, LicenseStatusExpired, LicenseStatusBanned, LicenseStatusPending:
		return true
	}
	return false
}

// LicenseKey is the aggregate for issued license keys.
type LicenseKey struct {
	ID          string
	Key         string
	ProductName string
	SellerID    string
	Status      LicenseStatus
	UserEmail   *string
	UsageCount  int
	MaxUsage    *int
	ExpiresAt   *time.Time
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveStatus derives the status a reader should act on at the given
// instant. The stored status is authoritative only for the banned override;
// expiry by date or exhausted quota is recomputed on every read because it is
// time- and usage-dependent.
func (l *LicenseKey) EffectiveStatus(now time.Time) LicenseStatus {
	if l.Status == LicenseStatusBanned {
		return LicenseStatusBanned
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return LicenseStatusExpired
	}
	if l.MaxUsage != nil && l.UsageCount >= *l.MaxUsage {
		return LicenseStatusExpired
	}
	return l.Status
}

// QuotaRemaining reports whether at least one usage slot is left.
func (l *LicenseKey) QuotaRemaining() bool {
	return l.MaxUsage == nil || l.UsageCount < *l.MaxUsage
}
