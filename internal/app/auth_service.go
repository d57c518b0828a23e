package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"chatvault/internal/cache"
	"chatvault/internal/model"
	"chatvault/internal/pkg/jwtutil"
	"chatvault/internal/repository"
	"chatvault/internal/syncer"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrUserNotFound      = errors.New("user not found")
)

type AuthService struct {
	userRepo      *repository.UserRepository
	tagCache      *cache.TagCache
	sync          *syncer.Provider
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(
	userRepo *repository.UserRepository,
	tagCache *cache.TagCache,
	sync *syncer.Provider,
	jwtSecret string,
	jwtExpiration time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		tagCache:      tagCache,
		sync:          sync,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || email == "" || password == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}

	existingByName, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUser(userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RenameUser changes the display name. The optimistic name field moves to
// Pending before the store write and is rolled back if it fails; siblings
// learn the confirmed value through the sync broadcast.
func (s *AuthService) RenameUser(ctx context.Context, userID, username string) error {
	username = strings.TrimSpace(username)
	if userID == "" || username == "" {
		return ErrInvalidInput
	}

	existing, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != userID {
		return ErrUsernameExists
	}

	msg, err := syncer.NewMessage(syncer.TypeUserRenamed, syncer.UserRenamedData{Username: username})
	if err != nil {
		return err
	}
	revert, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeLocal)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdateUsername(userID, username); err != nil {
		revert()
		return err
	}

	if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeRemote); err != nil {
		log.Printf("broadcast user rename failed: %v", err)
	}
	return nil
}

func (s *AuthService) GetPreferences(ctx context.Context, userID string) (json.RawMessage, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	prefsTag := cache.UserPreferences(userID)
	if s.tagCache != nil {
		var cached json.RawMessage
		if hit, err := s.tagCache.Get(ctx, prefsTag, &cached); err == nil && hit {
			return cached, nil
		}
	}

	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	prefs := json.RawMessage(user.Preferences)
	if len(prefs) == 0 {
		prefs = json.RawMessage("{}")
	}

	if s.tagCache != nil {
		if err := s.tagCache.Set(ctx, prefsTag, prefs); err != nil {
			log.Printf("cache preferences failed: %v", err)
		}
	}
	return prefs, nil
}

// UpdatePreferences persists the preferences blob, invalidates its tag and
// broadcasts the new value; the optimistic field reverts on store failure.
func (s *AuthService) UpdatePreferences(ctx context.Context, userID string, prefs json.RawMessage) error {
	if userID == "" || len(prefs) == 0 || !json.Valid(prefs) {
		return ErrInvalidInput
	}

	msg, err := syncer.NewMessage(syncer.TypePreferencesUpdated, syncer.PreferencesUpdatedData{Preferences: prefs})
	if err != nil {
		return err
	}
	revert, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeLocal)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePreferences(userID, datatypes.JSON(prefs)); err != nil {
		revert()
		return err
	}

	if s.tagCache != nil {
		if err := s.tagCache.Invalidate(ctx, cache.UserPreferences(userID)); err != nil {
			log.Printf("invalidate preferences tag failed: %v", err)
		}
	}
	if _, err := s.sync.Apply(ctx, userID, msg, syncer.ScopeRemote); err != nil {
		log.Printf("broadcast preferences update failed: %v", err)
	}
	return nil
}
