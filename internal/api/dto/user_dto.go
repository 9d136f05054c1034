package dto

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims surrounding whitespace from the email.
func (r *UserRegisterRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

// Validate reports every invalid field at once.
func (r UserRegisterRequest) Validate() error {
	details := map[string]any{}

	switch {
	case r.Email == "":
		details["email"] = "is required"
	default:
		addr, err := mail.ParseAddress(r.Email)
		if err != nil || addr.Address != r.Email {
			details["email"] = "must be a valid email address"
		}
	}

	switch {
	case strings.TrimSpace(r.Password) == "":
		details["password"] = "is required"
	case len(r.Password) > auth.MaxPasswordBytes:
		details["password"] = fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("invalid registration request", details)
	}
	return nil
}

// UserResponse is the public view of a user. The password hash is never exposed.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		IsDeleted: user.IsDeleted,
		CreatedAt: user.CreatedAt,
	}
}

func NewUserListResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}
