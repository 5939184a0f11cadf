package domain

import "github.com/google/uuid"

// NewID generates a UUIDv7 string for application-owned entities.
// Time-ordered, so index locality follows insertion order.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
