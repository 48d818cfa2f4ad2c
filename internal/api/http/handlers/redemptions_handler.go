package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/license-service/internal/api/dto"
	"github.com/spec-kit/license-service/internal/observability"
	"github.com/spec-kit/license-service/internal/ratelimit"
	"github.com/spec-kit/license-service/internal/service"
	apperrors "github.com/spec-kit/license-service/pkg/util/errorutil"
)

// RedemptionsHandler exposes the public redemption endpoint.
type RedemptionsHandler struct {
	licenses *service.LicenseService
	throttle *ratelimit.RedemptionThrottle
	metrics  *observability.Metrics
}

// NewRedemptionsHandler constructs handler.
func NewRedemptionsHandler(licenseService *service.LicenseService, throttle *ratelimit.RedemptionThrottle, metrics *observability.Metrics) *RedemptionsHandler {
	return &RedemptionsHandler{licenses: licenseService, throttle: throttle, metrics: metrics}
}

// Redeem POST /redeem. Rejections are reported in the response body with a
// 200 status; only malformed requests, throttling and engine failures map to
// error statuses.
func (h *RedemptionsHandler) Redeem(c *fiber.Ctx) error {
	var req dto.RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Key == "" {
		return apperrors.NewValidationError("key required", nil)
	}
	if !h.throttle.Allow(c.Context(), req.Key) {
		return apperrors.NewDomainError("RATE_LIMITED", "too many redemption attempts",
			http.StatusTooManyRequests, nil)
	}

	result, err := h.licenses.Redeem(c.Context(), req.Key, service.RedemptionContext{UserEmail: req.UserEmail})
	if err != nil {
		return err
	}

	resp := dto.RedeemResponse{
		Accepted:   result.Accepted,
		UsageCount: result.UsageCount,
		MaxUsage:   result.MaxUsage,
	}
	outcome := "accepted"
	if !result.Accepted {
		resp.Reason = string(result.Reason)
		outcome = string(result.Reason)
	}
	h.metrics.RecordRedemption(outcome)
	return c.JSON(fiber.Map{"data": resp})
}
