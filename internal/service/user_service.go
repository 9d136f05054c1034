package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// UserService coordinates the user account lifecycle.
type UserService struct {
	users      repository.UserRepository
	hasher     auth.PasswordHasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// UserDependencies encapsulates collaborators for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	Hasher     auth.PasswordHasher
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewUserService builds the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:      deps.UserRepo,
		hasher:     deps.Hasher,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterUser creates a new active account for email.
//
// The active-email check runs first; a concurrent registration that slips
// past it is still rejected by the store's unique index and reported the
// same way.
func (s *UserService) RegisterUser(ctx context.Context, email, password string) (*domain.User, error) {
	s.logger.Info("registering user", zap.String("email", email))

	exists, err := s.users.ExistsActiveByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if exists {
		return nil, emailConflict(email)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.NewValidationError("password too long", map[string]any{
				"password": fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes),
			})
		}
		return nil, apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		IsDeleted:    false,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.logger.Warn("registration lost active-email race", zap.String("email", email))
			return nil, emailConflict(email)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{Email: user.Email})
	return user, nil
}

// FindUserByID returns the user with id, including soft-deleted users.
func (s *UserService) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, "id", id)
	}
	return user, nil
}

// FindUserByEmail returns the active user holding email.
func (s *UserService) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		return nil, s.mapLookupError(err, "email", email)
	}
	return user, nil
}

// FindAllUsers returns the active users in store order.
func (s *UserService) FindAllUsers(ctx context.Context) ([]domain.User, error) {
	s.logger.Debug("listing users")

	all, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	active := make([]domain.User, 0, len(all))
	for _, user := range all {
		if !user.IsActive() {
			continue
		}
		active = append(active, user)
	}
	return active, nil
}

// DeleteUser soft deletes the user with id. Deleting an already deleted user
// succeeds and leaves it deleted.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	s.logger.Info("deleting user", zap.String("user_id", id))

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return s.mapLookupError(err, "id", id)
	}

	alreadyDeleted := !user.IsActive()
	user.MarkDeleted()
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return userNotFound("id", id)
		}
		return apperrors.NewInternalError(err)
	}

	s.logger.Info("user deleted", zap.String("user_id", id), zap.Bool("already_deleted", alreadyDeleted))
	s.publish(ctx, events.EventUserDeleted, user.ID, events.UserDeletedPayload{
		Email:          user.Email,
		AlreadyDeleted: alreadyDeleted,
	})
	return nil
}

func (s *UserService) publish(ctx context.Context, eventType events.EventType, userID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.NewEvent(eventType, userID, s.now(), payload)
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", string(eventType)),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (s *UserService) mapLookupError(err error, field, value string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return userNotFound(field, value)
	}
	return apperrors.NewInternalError(err)
}

func userNotFound(field, value string) error {
	return apperrors.NewNotFound("user", map[string]any{field: value})
}

func emailConflict(email string) error {
	return apperrors.NewConflict("email already registered", map[string]any{"email": email})
}
