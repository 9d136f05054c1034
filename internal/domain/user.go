package domain

import "time"

// User is the domain model for a registered account.
//
// A user is never physically removed; soft deletion flips IsDeleted and the
// email becomes available for a new registration.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsDeleted    bool
	CreatedAt    time.Time
}

// IsActive reports whether the user has not been soft deleted.
func (u *User) IsActive() bool {
	return u != nil && !u.IsDeleted
}

// MarkDeleted soft deletes the user. Calling it twice is harmless.
func (u *User) MarkDeleted() {
	u.IsDeleted = true
}
