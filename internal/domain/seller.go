package domain

import "time"

// SellerStatus represents lifecycle states for a seller account.
type SellerStatus string

const (
	SellerStatusActive    SellerStatus = "ACTIVE"
	SellerStatusSuspended SellerStatus = "SUSPENDED"
)

// Seller is the domain model for authenticated owners of license keys.
type Seller struct {
	ID           string
	Email        string
	PasswordHash string
	Status       SellerStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
