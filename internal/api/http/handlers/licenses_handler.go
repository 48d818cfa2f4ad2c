package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/license-service/internal/api/dto"
	"github.com/spec-kit/license-service/internal/auth"
	"github.com/spec-kit/license-service/internal/domain"
	"github.com/spec-kit/license-service/internal/service"
	apperrors "github.com/spec-kit/license-service/pkg/util/errorutil"
)

// expiresAtLayout matches the date-only input the dashboard submits.
const expiresAtLayout = "2006-01-02"

// LicensesHandler manages seller-facing license endpoints.
type LicensesHandler struct {
	licenses *service.LicenseService
	reports  *service.ReportService
}

// NewLicensesHandler constructs handler.
func NewLicensesHandler(licenseService *service.LicenseService, reportService *service.ReportService) *LicensesHandler {
	return &LicensesHandler{licenses: licenseService, reports: reportService}
}

// CreateLicense POST /licenses.
func (h *LicensesHandler) CreateLicense(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	var req dto.CreateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	expiresAt, err := parseExpiresAt(req.ExpiresAt)
	if err != nil {
		return err
	}

	input := service.LicenseCreateInput{
		ProductName: req.ProductName,
		MaxUsage:    req.MaxUsage,
		ExpiresAt:   expiresAt,
		Notes:       req.Notes,
	}
	license, err := h.licenses.Create(c.Context(), principal.SellerID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.licenseResponse(license)})
}

// ListLicenses GET /licenses.
func (h *LicensesHandler) ListLicenses(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	licenses, err := h.licenses.ListForSeller(c.Context(), principal.SellerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.LicenseResponse, 0, len(licenses))
	for i := range licenses {
		items = append(items, h.licenseResponse(&licenses[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetLicense GET /licenses/:id.
func (h *LicensesHandler) GetLicense(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	license, err := h.licenses.GetForSeller(c.Context(), principal.SellerID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.licenseResponse(license)})
}

// UpdateLicense PATCH /licenses/:id.
func (h *LicensesHandler) UpdateLicense(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	var req dto.UpdateLicenseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	expiresAt, err := parseExpiresAt(req.ExpiresAt)
	if err != nil {
		return err
	}
	license, err := h.licenses.UpdateLicense(c.Context(), principal.SellerID, c.Params("id"), service.LicenseUpdateInput{
		MaxUsage:  req.MaxUsage,
		ExpiresAt: expiresAt,
		Notes:     req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.licenseResponse(license)})
}

// SetStatus PATCH /licenses/:id/status.
func (h *LicensesHandler) SetStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	license, err := h.licenses.SetStatus(c.Context(), principal.SellerID, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.licenseResponse(license)})
}

// DeleteLicense DELETE /licenses/:id.
func (h *LicensesHandler) DeleteLicense(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	if err := h.licenses.Delete(c.Context(), principal.SellerID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Aggregates GET /licenses/aggregates.
func (h *LicensesHandler) Aggregates(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("seller required")
	}
	agg, err := h.reports.Aggregates(c.Context(), principal.SellerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agg})
}

func (h *LicensesHandler) licenseResponse(license *domain.LicenseKey) dto.LicenseResponse {
	return dto.LicenseResponse{
		ID:              license.ID,
		Key:             license.Key,
		ProductName:     license.ProductName,
		Status:          license.Status,
		EffectiveStatus: license.EffectiveStatus(h.licenses.Now()),
		UserEmail:       license.UserEmail,
		UsageCount:      license.UsageCount,
		MaxUsage:        license.MaxUsage,
		ExpiresAt:       license.ExpiresAt,
		Notes:           license.Notes,
		CreatedAt:       license.CreatedAt,
		UpdatedAt:       license.UpdatedAt,
	}
}

func parseExpiresAt(val *string) (*time.Time, error) {
	if val == nil || *val == "" {
		return nil, nil
	}
	t, err := time.Parse(expiresAtLayout, *val)
	if err != nil {
		t, err = time.Parse(time.RFC3339, *val)
	}
	if err != nil {
		return nil, apperrors.NewValidationError("expires_at must be a valid date", map[string]any{"expires_at": *val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
