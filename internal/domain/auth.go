package domain

import "time"

// SubjectType identifies the kind of principal a token was issued for.
type SubjectType string

const (
	SubjectTypeSeller SubjectType = "SELLER"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}
