package domain

import "time"

// BlacklistedToken records a revoked token for a user until it expires.
// UserID references users.id; the token itself is only kept as a hash.
type BlacklistedToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}
