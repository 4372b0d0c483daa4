package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"leverledger/internal/domain"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 6

// RegisterInput holds a new account's details
type RegisterInput struct {
	Username string
	Email    string
	Name     string
	Password string
}

// AuthService verifies credentials and manages accounts
type AuthService struct {
	store    domain.Store
	balances *BalanceService
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(store domain.Store, balances *BalanceService, log zerolog.Logger) *AuthService {
	return &AuthService{
		store:    store,
		balances: balances,
		log:      log,
		now:      time.Now,
	}
}

// Authenticate returns the user matching username and password. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.store.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	if !user.IsActive {
		reason := "no reason given"
		if user.BanReason != nil {
			reason = *user.BanReason
		}
		return nil, fmt.Errorf("account banned (%s): %w", reason, domain.ErrUnauthorized)
	}

	return user, nil
}

// VerifyCredentials implements domain.AuthProvider
func (s *AuthService) VerifyCredentials(ctx context.Context, username, secret string) (domain.Identity, error) {
	user, err := s.Authenticate(ctx, username, secret)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: user.ID, IsAdmin: user.IsAdmin()}, nil
}

// Register creates a trading account and grants the sign-up bonus
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)

	if in.Username == "" {
		return nil, fmt.Errorf("username is required: %w", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("email %q: %w", in.Email, domain.ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, domain.ErrInvalidInput)
	}
	if in.Name == "" {
		in.Name = in.Username
	}

	user, err := s.newUser(in.Username, in.Email, in.Name, in.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", in.Username, err)
	}

	if err := s.balances.GrantBonus(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to grant sign-up bonus")
	} else if reloaded, err := s.store.Users().GetByID(ctx, user.ID); err == nil {
		user = reloaded
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user registered")
	return user, nil
}

// EnsureAdmin creates the admin account if no user holds the username
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	existing, err := s.store.Users().GetByUsername(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			s.log.Warn().Str("username", username).Msg("admin username is taken by a regular user")
		}
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	admin, err := s.newUser(username, "", "Administrator", password, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.store.Users().Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.log.Info().Str("username", username).Msg("admin account created")
	return nil
}

func (s *AuthService) newUser(username, email, name, password, role string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	return &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Balance:      decimal.Zero,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
