package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/license-service/internal/config"
	"github.com/spec-kit/license-service/internal/domain"
	"github.com/spec-kit/license-service/internal/events"
	"github.com/spec-kit/license-service/internal/keygen"
	"github.com/spec-kit/license-service/internal/repository"
	apperrors "github.com/spec-kit/license-service/pkg/util/errorutil"
)

// KeyFunc produces candidate license key strings.
type KeyFunc func() string

// LicenseService coordinates license key lifecycle workflows.
type LicenseService struct {
	licenses      repository.LicenseRepository
	dispatcher    events.Dispatcher
	generate      KeyFunc
	keyRetries    int
	redeemRetries int
	now           func() time.Time
}

// LicenseDependencies bundles collaborators for the license service.
type LicenseDependencies struct {
	LicenseRepo repository.LicenseRepository
	Dispatcher  events.Dispatcher
	// Generate overrides the key generator; nil selects keygen.Generate.
	Generate KeyFunc
	// Now overrides the clock; nil selects time.Now.
	Now func() time.Time
}

// LicenseCreateInput describes license creation payload.
type LicenseCreateInput struct {
	ProductName string
	MaxUsage    *int
	ExpiresAt   *time.Time
	Notes       *string
}

// LicenseUpdateInput carries seller edits; nil fields are left unchanged.
type LicenseUpdateInput struct {
	MaxUsage  *int
	ExpiresAt *time.Time
	Notes     *string
}

// RedemptionContext carries end-user metadata supplied with a redemption.
type RedemptionContext struct {
	UserEmail *string
}

// RejectionReason enumerates why a redemption was declined.
type RejectionReason string

const (
	RejectionQuotaExceeded RejectionReason = "QUOTA_EXCEEDED"
	RejectionExpired       RejectionReason = "EXPIRED"
	RejectionBanned        RejectionReason = "BANNED"
	RejectionNotYetActive  RejectionReason = "NOT_YET_ACTIVE"
	RejectionNotFound      RejectionReason = "NOT_FOUND"
)

// RedemptionResult is the adjudication of a redemption request.
type RedemptionResult struct {
	Accepted   bool
	Reason     RejectionReason
	UsageCount int
	MaxUsage   *int
	License    *domain.LicenseKey
}

// NewLicenseService constructs the service.
func NewLicenseService(cfg config.EngineConfig, deps LicenseDependencies) *LicenseService {
	generate := deps.Generate
	if generate == nil {
		generate = keygen.Generate
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	keyRetries := cfg.KeyRetryLimit
	if keyRetries <= 0 {
		keyRetries = 5
	}
	redeemRetries := cfg.RedeemRetryLimit
	if redeemRetries <= 0 {
		redeemRetries = 3
	}
	return &LicenseService{
		licenses:      deps.LicenseRepo,
		dispatcher:    deps.Dispatcher,
		generate:      generate,
		keyRetries:    keyRetries,
		redeemRetries: redeemRetries,
		now:           now,
	}
}

// Create validates input, allocates a unique key and inserts the record.
// Uniqueness is enforced at the store boundary: a duplicate insert retries
// generation up to the configured bound.
func (s *LicenseService) Create(ctx context.Context, sellerID string, input LicenseCreateInput) (*domain.LicenseKey, error) {
	productName := strings.TrimSpace(input.ProductName)
	if productName == "" {
		return nil, apperrors.NewValidationError("product_name required", nil)
	}
	if input.MaxUsage != nil && *input.MaxUsage <= 0 {
		return nil, apperrors.NewValidationError("max_usage must be a positive integer", nil)
	}
	if sellerID == "" {
		return nil, apperrors.NewValidationError("seller identity required", nil)
	}

	license := &domain.LicenseKey{
		ProductName: productName,
		SellerID:    sellerID,
		Status:      domain.LicenseStatusActive,
		UsageCount:  0,
		MaxUsage:    input.MaxUsage,
		ExpiresAt:   input.ExpiresAt,
		Notes:       input.Notes,
	}

	for attempt := 0; attempt < s.keyRetries; attempt++ {
		license.Key = s.generate()
		err := s.licenses.Create(ctx, license)
		if err == nil {
			s.publishEvent(ctx, events.Event{
				Type:      events.EventLicenseCreated,
				LicenseID: license.ID,
				Actor:     sellerActor(sellerID),
				Payload: events.LicenseCreatedPayload{
					Key:         license.Key,
					ProductName: license.ProductName,
					MaxUsage:    license.MaxUsage,
					ExpiresAt:   license.ExpiresAt,
				},
			})
			return license, nil
		}
		if errors.Is(err, repository.ErrDuplicateKey) {
			continue
		}
		return nil, storeError(err)
	}
	return nil, apperrors.NewKeyGenerationExhausted(s.keyRetries)
}

// Redeem adjudicates a redemption request against the key's effective status
// at redemption time. The fetch/check/increment cycle is retried when a
// concurrent writer invalidates the observed usage count.
func (s *LicenseService) Redeem(ctx context.Context, key string, rctx RedemptionContext) (*RedemptionResult, error) {
	if !keygen.IsValidFormat(key) {
		return rejection(RejectionNotFound, nil), nil
	}

	for attempt := 0; attempt < s.redeemRetries; attempt++ {
		license, err := s.licenses.GetByKey(ctx, key)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return rejection(RejectionNotFound, nil), nil
			}
			return nil, storeError(err)
		}

		switch license.EffectiveStatus(s.now()) {
		case domain.LicenseStatusExpired:
			return rejection(RejectionExpired, license), nil
		case domain.LicenseStatusBanned:
			return rejection(RejectionBanned, license), nil
		case domain.LicenseStatusPending:
			return rejection(RejectionNotYetActive, license), nil
		}

		// Guard: effective status said active, re-check the quota before
		// committing the increment.
		if !license.QuotaRemaining() {
			return rejection(RejectionQuotaExceeded, license), nil
		}

		var nextStatus *domain.LicenseStatus
		exhausted := license.MaxUsage != nil && license.UsageCount+1 >= *license.MaxUsage
		if exhausted {
			expired := domain.LicenseStatusExpired
			nextStatus = &expired
		}

		err = s.licenses.IncrementUsage(ctx, license.ID, license.UsageCount, nextStatus, rctx.UserEmail)
		if errors.Is(err, repository.ErrUsageConflict) {
			continue
		}
		if err != nil {
			return nil, storeError(err)
		}

		license.UsageCount++
		if nextStatus != nil {
			license.Status = *nextStatus
		}
		if license.UserEmail == nil {
			license.UserEmail = rctx.UserEmail
		}
		s.publishEvent(ctx, events.Event{
			Type:      events.EventLicenseRedeemed,
			LicenseID: license.ID,
			Actor:     events.Actor{},
			Payload: events.LicenseRedeemedPayload{
				Key:        license.Key,
				UsageCount: license.UsageCount,
				MaxUsage:   license.MaxUsage,
				UserEmail:  license.UserEmail,
				Exhausted:  exhausted,
			},
		})
		return &RedemptionResult{
			Accepted:   true,
			UsageCount: license.UsageCount,
			MaxUsage:   license.MaxUsage,
			License:    license,
		}, nil
	}
	return nil, apperrors.NewConflict("concurrent redemption retries exhausted", nil)
}

// SetStatus applies an explicit seller override (ban/unban/reactivate).
func (s *LicenseService) SetStatus(ctx context.Context, sellerID, id string, newStatus domain.LicenseStatus) (*domain.LicenseKey, error) {
	if !newStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	license, err := s.getOwned(ctx, sellerID, id)
	if err != nil {
		return nil, err
	}
	oldStatus := license.Status
	license.Status = newStatus
	if err := s.licenses.Update(ctx, license); err != nil {
		return nil, storeError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventLicenseStatusChanged,
		LicenseID: license.ID,
		Actor:     sellerActor(sellerID),
		Payload: events.LicenseStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return license, nil
}

// UpdateLicense applies seller edits to quota, expiry and notes.
func (s *LicenseService) UpdateLicense(ctx context.Context, sellerID, id string, input LicenseUpdateInput) (*domain.LicenseKey, error) {
	if input.MaxUsage != nil && *input.MaxUsage <= 0 {
		return nil, apperrors.NewValidationError("max_usage must be a positive integer", nil)
	}
	license, err := s.getOwned(ctx, sellerID, id)
	if err != nil {
		return nil, err
	}
	if input.MaxUsage != nil {
		license.MaxUsage = input.MaxUsage
	}
	if input.ExpiresAt != nil {
		license.ExpiresAt = input.ExpiresAt
	}
	if input.Notes != nil {
		license.Notes = input.Notes
	}
	if err := s.licenses.Update(ctx, license); err != nil {
		return nil, storeError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventLicenseUpdated,
		LicenseID: license.ID,
		Actor:     sellerActor(sellerID),
		Payload: events.LicenseUpdatedPayload{
			MaxUsage:  license.MaxUsage,
			ExpiresAt: license.ExpiresAt,
		},
	})
	return license, nil
}

// Delete removes a license owned by the seller. A record that disappeared
// between the ownership check and the delete is treated as already deleted.
func (s *LicenseService) Delete(ctx context.Context, sellerID, id string) error {
	license, err := s.getOwned(ctx, sellerID, id)
	if err != nil {
		return err
	}
	if err := s.licenses.Delete(ctx, license.ID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return storeError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventLicenseDeleted,
		LicenseID: license.ID,
		Actor:     sellerActor(sellerID),
		Payload: events.LicenseDeletedPayload{
			Key:         license.Key,
			ProductName: license.ProductName,
		},
	})
	return nil
}

// ListForSeller returns a fresh snapshot of the seller's licenses, newest
// first.
func (s *LicenseService) ListForSeller(ctx context.Context, sellerID string, limit, offset int) ([]domain.LicenseKey, error) {
	licenses, err := s.licenses.ListBySeller(ctx, sellerID, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return licenses, nil
}

// GetForSeller fetches a single license ensuring ownership.
func (s *LicenseService) GetForSeller(ctx context.Context, sellerID, id string) (*domain.LicenseKey, error) {
	return s.getOwned(ctx, sellerID, id)
}

// Now exposes the engine clock for read-time status derivation.
func (s *LicenseService) Now() time.Time {
	return s.now()
}

func (s *LicenseService) getOwned(ctx context.Context, sellerID, id string) (*domain.LicenseKey, error) {
	license, err := s.licenses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("license", nil)
		}
		return nil, storeError(err)
	}
	if license.SellerID != sellerID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return license, nil
}

func (s *LicenseService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func rejection(reason RejectionReason, license *domain.LicenseKey) *RedemptionResult {
	result := &RedemptionResult{Accepted: false, Reason: reason, License: license}
	if license != nil {
		result.UsageCount = license.UsageCount
		result.MaxUsage = license.MaxUsage
	}
	return result
}

func sellerActor(sellerID string) events.Actor {
	return events.Actor{
		Type:     domain.SubjectTypeSeller,
		SellerID: &sellerID,
	}
}

// storeError maps repository failures onto the service error taxonomy. Row
// absence keeps its meaning; anything else from the store is surfaced as an
// availability problem for the caller to retry at its discretion.
func storeError(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("license", nil)
	}
	return apperrors.NewStoreUnavailable(err)
}
