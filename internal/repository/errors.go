package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates another active user already holds the email.
	ErrDuplicateEmail = errors.New("repository: email already held by an active user")
)
