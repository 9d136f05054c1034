package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

func newSQLiteUserRepo(t *testing.T) repository.UserRepository {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunMigrations(ctx, db.DB, persistence.DialectSQLite, zap.NewNop()))

	return repository.NewSQLiteUserRepository(db.DB)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return d.err
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestUserService(t *testing.T, repo repository.UserRepository) (*UserService, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	svc := NewUserService(UserDependencies{
		UserRepo:   repo,
		Hasher:     auth.NewBcryptHasher(bcrypt.MinCost),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	return svc, dispatcher
}

func TestRegisterUser(t *testing.T) {
	svc, dispatcher := newTestUserService(t, newSQLiteUserRepo(t))

	user, err := svc.RegisterUser(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "a@x.com", user.Email)
	assert.False(t, user.IsDeleted)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NotEqual(t, "pw1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw1")))
	assert.Equal(t, []events.EventType{events.EventUserRegistered}, dispatcher.types())
}

func TestRegisterUserDuplicateActiveEmail(t *testing.T) {
	svc, dispatcher := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = svc.RegisterUser(ctx, "a@x.com", "pw2")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, errorCode(err))
	assert.Equal(t, "email already registered", apperrors.ToDomainError(err).Message)
	assert.Len(t, dispatcher.types(), 1)
}

func TestRegisterUserReusesEmailOfDeletedUser(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	first, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, first.ID))

	second, err := svc.RegisterUser(ctx, "a@x.com", "pw3")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegisterUserSamePasswordHashesDiffer(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	a, err := svc.RegisterUser(ctx, "a@x.com", "shared")
	require.NoError(t, err)
	b, err := svc.RegisterUser(ctx, "b@x.com", "shared")
	require.NoError(t, err)

	assert.NotEqual(t, a.PasswordHash, b.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("shared")))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte("shared")))
}

func TestRegisterUserPasswordTooLong(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))

	_, err := svc.RegisterUser(context.Background(), "a@x.com", strings.Repeat("p", auth.MaxPasswordBytes+1))
	assert.Equal(t, apperrors.CodeValidationFailed, errorCode(err))
}

// blindExistsRepo hides existing rows from the pre-check, reproducing two
// registrations that both pass it before either inserts.
type blindExistsRepo struct {
	repository.UserRepository
}

func (blindExistsRepo) ExistsActiveByEmail(context.Context, string) (bool, error) {
	return false, nil
}

func TestRegisterUserStoreConstraintClosesRace(t *testing.T) {
	svc, _ := newTestUserService(t, blindExistsRepo{newSQLiteUserRepo(t)})
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = svc.RegisterUser(ctx, "a@x.com", "pw2")
	assert.Equal(t, apperrors.CodeConflict, errorCode(err), "got %v", err)
}

func TestRegisterUserConcurrentSameEmail(t *testing.T) {
	repo := newSQLiteUserRepo(t)
	svc, _ := newTestUserService(t, repo)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RegisterUser(context.Background(), "race@x.com", "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errorCode(err) == apperrors.CodeConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFindUserByIDReturnsDeletedUser(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, user.ID))

	got, err := svc.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	all, err := svc.FindAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFindUserByIDUnknown(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))

	_, err := svc.FindUserByID(context.Background(), "9b2f1d4e-1111-2222-3333-444455556666")
	assert.Equal(t, apperrors.CodeNotFound, errorCode(err))
}

func TestFindUserByEmailOnlyActive(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	got, err := svc.FindUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, svc.DeleteUser(ctx, user.ID))
	_, err = svc.FindUserByEmail(ctx, "a@x.com")
	assert.Equal(t, apperrors.CodeNotFound, errorCode(err))
}

func TestFindAllUsersFiltersDeleted(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	a, err := svc.RegisterUser(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	b, err := svc.RegisterUser(ctx, "b@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, a.ID))

	all, err := svc.FindAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestFindAllUsersEmptyIsNotNil(t *testing.T) {
	svc, _ := newTestUserService(t, newSQLiteUserRepo(t))

	all, err := svc.FindAllUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
}

func TestDeleteUserUnknown(t *testing.T) {
	svc, dispatcher := newTestUserService(t, newSQLiteUserRepo(t))

	err := svc.DeleteUser(context.Background(), "9b2f1d4e-1111-2222-3333-444455556666")
	assert.Equal(t, apperrors.CodeNotFound, errorCode(err))
	assert.Empty(t, dispatcher.types())
}

func TestDeleteUserTwiceSucceeds(t *testing.T) {
	svc, dispatcher := newTestUserService(t, newSQLiteUserRepo(t))
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, user.ID))
	require.NoError(t, svc.DeleteUser(ctx, user.ID))

	got, err := svc.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, []events.EventType{
		events.EventUserRegistered,
		events.EventUserDeleted,
		events.EventUserDeleted,
	}, dispatcher.types())
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	svc, dispatcher := newTestUserService(t, newSQLiteUserRepo(t))
	dispatcher.err = errors.New("subscriber down")

	_, err := svc.RegisterUser(context.Background(), "a@x.com", "pw1")
	assert.NoError(t, err)
}

// failingRepo returns err from every call.
type failingRepo struct {
	err error
}

func (r failingRepo) ExistsActiveByEmail(context.Context, string) (bool, error) { return false, r.err }
func (r failingRepo) GetActiveByEmail(context.Context, string) (*domain.User, error) {
	return nil, r.err
}
func (r failingRepo) GetByID(context.Context, string) (*domain.User, error) { return nil, r.err }
func (r failingRepo) List(context.Context) ([]domain.User, error)          { return nil, r.err }
func (r failingRepo) Save(context.Context, *domain.User) error             { return r.err }

func TestStoreFailuresBecomeInternalErrors(t *testing.T) {
	cause := errors.New("connection refused")
	svc, _ := newTestUserService(t, failingRepo{err: cause})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"register", func() error { _, err := svc.RegisterUser(ctx, "a@x.com", "pw"); return err }},
		{"find by id", func() error { _, err := svc.FindUserByID(ctx, "u-1"); return err }},
		{"find by email", func() error { _, err := svc.FindUserByEmail(ctx, "a@x.com"); return err }},
		{"find all", func() error { _, err := svc.FindAllUsers(ctx); return err }},
		{"delete", func() error { return svc.DeleteUser(ctx, "u-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInternal, errorCode(err))
			assert.ErrorIs(t, err, cause)
		})
	}
}

func errorCode(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}
