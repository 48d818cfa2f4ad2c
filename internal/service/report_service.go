package service

import (
	"context"
	"time"

	"github.com/spec-kit/license-service/internal/domain"
	"github.com/spec-kit/license-service/internal/repository"
)

const reportPageSize = 500

// Aggregates holds the dashboard counters for a seller's record set.
type Aggregates struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Expired         int `json:"expired"`
	IssuedThisMonth int `json:"issued_this_month"`
}

// ReportService derives dashboard counters from a seller's records. Counters
// are recomputed over a fresh snapshot on every call; the store is
// authoritative and no cache is maintained.
type ReportService struct {
	licenses repository.LicenseRepository
	now      func() time.Time
}

// NewReportService constructs the service. A nil clock selects time.Now.
func NewReportService(licenseRepo repository.LicenseRepository, now func() time.Time) *ReportService {
	if now == nil {
		now = time.Now
	}
	return &ReportService{licenses: licenseRepo, now: now}
}

// Aggregates computes totals over all of the seller's licenses. Active and
// expired counts use the effective status so date expiry and exhausted quotas
// are reflected without a stored-status rewrite.
func (s *ReportService) Aggregates(ctx context.Context, sellerID string) (Aggregates, error) {
	now := s.now()
	var agg Aggregates

	for offset := 0; ; offset += reportPageSize {
		page, err := s.licenses.ListBySeller(ctx, sellerID, reportPageSize, offset)
		if err != nil {
			return Aggregates{}, storeError(err)
		}
		for i := range page {
			tally(&agg, &page[i], now)
		}
		if len(page) < reportPageSize {
			break
		}
	}
	return agg, nil
}

func tally(agg *Aggregates, license *domain.LicenseKey, now time.Time) {
	agg.Total++
	switch license.EffectiveStatus(now) {
	case domain.LicenseStatusActive:
		agg.Active++
	case domain.LicenseStatusExpired:
		agg.Expired++
	}
	if license.CreatedAt.Month() == now.Month() && license.CreatedAt.Year() == now.Year() {
		agg.IssuedThisMonth++
	}
}
