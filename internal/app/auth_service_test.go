package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatvault/internal/cache"
	"chatvault/internal/model"
	"chatvault/internal/pkg/jwtutil"
	"chatvault/internal/repository"
	"chatvault/internal/syncer"
)

const testJWTSecret = "test-secret"

type authServiceEnv struct {
	svc *AuthService
	db  *gorm.DB
}

func newAuthServiceEnv(t *testing.T) *authServiceEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewAuthService(
		repository.NewUserRepository(db),
		cache.NewTagCache(client, time.Minute),
		syncer.NewProvider(client, "chatvault:sync:test", uuid.NewString(), nil),
		testJWTSecret,
		time.Hour,
	)
	return &authServiceEnv{svc: svc, db: db}
}

func TestRegisterIssuesParsableToken(t *testing.T) {
	env := newAuthServiceEnv(t)

	result, err := env.svc.Register(RegisterInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
	assert.Equal(t, "alice@example.com", result.User.Email, "email is lowercased")
	assert.NotEqual(t, "correct horse battery", result.User.PasswordHash)

	claims, err := jwtutil.ParseToken(testJWTSecret, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestRegisterRejectsDuplicatesAndWeakInput(t *testing.T) {
	env := newAuthServiceEnv(t)

	_, err := env.svc.Register(RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long enough pw"})
	require.NoError(t, err)

	_, err = env.svc.Register(RegisterInput{Username: "alice", Email: "other@example.com", Password: "long enough pw"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = env.svc.Register(RegisterInput{Username: "bob", Email: "alice@example.com", Password: "long enough pw"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = env.svc.Register(RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginVerifiesPassword(t *testing.T) {
	env := newAuthServiceEnv(t)
	_, err := env.svc.Register(RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long enough pw"})
	require.NoError(t, err)

	result, err := env.svc.Login(LoginInput{Username: "alice", Password: "long enough pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	_, err = env.svc.Login(LoginInput{Username: "alice", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = env.svc.Login(LoginInput{Username: "nobody", Password: "long enough pw"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestRenameUserEnforcesUniqueness(t *testing.T) {
	env := newAuthServiceEnv(t)
	ctx := context.Background()
	alice, err := env.svc.Register(RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long enough pw"})
	require.NoError(t, err)
	_, err = env.svc.Register(RegisterInput{Username: "bob", Email: "bob@example.com", Password: "long enough pw"})
	require.NoError(t, err)

	err = env.svc.RenameUser(ctx, alice.User.ID, "bob")
	assert.ErrorIs(t, err, ErrUsernameExists)

	// Renaming to your own current name is allowed.
	require.NoError(t, env.svc.RenameUser(ctx, alice.User.ID, "alice"))

	require.NoError(t, env.svc.RenameUser(ctx, alice.User.ID, "alice2"))
	user, err := env.svc.GetUser(alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
}

func TestPreferencesDefaultAndRoundTrip(t *testing.T) {
	env := newAuthServiceEnv(t)
	ctx := context.Background()
	alice, err := env.svc.Register(RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long enough pw"})
	require.NoError(t, err)

	prefs, err := env.svc.GetPreferences(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(prefs))

	err = env.svc.UpdatePreferences(ctx, alice.User.ID, json.RawMessage(`{"theme":"dark"}`))
	require.NoError(t, err)

	prefs, err = env.svc.GetPreferences(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(prefs))
}

func TestUpdatePreferencesRejectsInvalidJSON(t *testing.T) {
	env := newAuthServiceEnv(t)
	alice, err := env.svc.Register(RegisterInput{Username: "alice", Email: "alice@example.com", Password: "long enough pw"})
	require.NoError(t, err)

	err = env.svc.UpdatePreferences(context.Background(), alice.User.ID, json.RawMessage(`{"theme":`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = env.svc.UpdatePreferences(context.Background(), alice.User.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
