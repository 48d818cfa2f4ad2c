package dto

import "time"

// SellerRegisterRequest payload.
type SellerRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SellerLoginRequest payload.
type SellerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
