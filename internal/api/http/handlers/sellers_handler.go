package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/license-service/internal/api/dto"
	"github.com/spec-kit/license-service/internal/service"
	apperrors "github.com/spec-kit/license-service/pkg/util/errorutil"
)

// SellersHandler exposes auth endpoints for sellers.
type SellersHandler struct {
	auth *service.AuthService
}

// NewSellersHandler constructs handler.
func NewSellersHandler(authService *service.AuthService) *SellersHandler {
	return &SellersHandler{auth: authService}
}

// Register handles POST /auth/sellers/register.
func (h *SellersHandler) Register(c *fiber.Ctx) error {
	var req dto.SellerRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	seller, token, exp, err := h.auth.Register(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"seller": fiber.Map{
				"id":    seller.ID,
				"email": seller.Email,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Login handles POST /auth/sellers/login.
func (h *SellersHandler) Login(c *fiber.Ctx) error {
	var req dto.SellerLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	seller, token, exp, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"seller": fiber.Map{
				"id":    seller.ID,
				"email": seller.Email,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
