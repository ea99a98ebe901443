package service

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/patric-chuzhbe/shortlink/internal/auth"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const minPasswordLength = 8

const (
	emailTakenMessage    = "user with this email already exists."
	usernameTakenMessage = "A user with that username already exists."
)

type userStore interface {
	CreateUser(ctx context.Context, usr *user.User) (int64, error)
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

type tokenIssuer interface {
	IssueTokenPair(userID int64) (models.TokenPair, error)
	ParseRefreshToken(ctx context.Context, tokenString string) (*auth.Claims, error)
	Revoke(ctx context.Context, claims *auth.Claims) error
}

// AuthService handles registration, login, logout, token refresh and user management.
type AuthService struct {
	users  userStore
	tokens tokenIssuer
}

func NewAuthService(users userStore, tokens tokenIssuer) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
	}
}

// Register creates a user and returns its ID. Field checks, uniqueness
// included, come before the password rules.
func (s *AuthService) Register(ctx context.Context, request models.RegisterRequest) (int64, error) {
	fieldErrors, err := s.checkRegisterFields(ctx, request)
	if err != nil {
		return 0, err
	}
	if fieldErrors != nil {
		return 0, fieldErrors
	}

	if request.Password1 != request.Password2 {
		return 0, newValidationError(NonFieldErrors, "Passwords do not match.")
	}
	if utf8.RuneCountInString(request.Password1) < minPasswordLength {
		return 0, newValidationError(NonFieldErrors, "Password must be at least 8 characters long.")
	}
	if len(request.Password1) > user.MaxPasswordBytes {
		return 0, newValidationError(NonFieldErrors, "Password must be at most 72 bytes long.")
	}

	usr := &user.User{
		Email:    request.Email,
		Username: request.Username,
	}
	if err := usr.SetPassword(request.Password1); err != nil {
		return 0, err
	}

	// the constraints still catch a concurrent registration
	userID, err := s.users.CreateUser(ctx, usr)
	switch {
	case errors.Is(err, models.ErrEmailTaken):
		return 0, newValidationError("email", emailTakenMessage)
	case errors.Is(err, models.ErrUsernameTaken):
		return 0, newValidationError("username", usernameTakenMessage)
	case err != nil:
		return 0, err
	}

	return userID, nil
}

// checkRegisterFields returns the tag errors merged with the uniqueness errors
// of the fields that passed their tags. A nil *ValidationError means no errors.
func (s *AuthService) checkRegisterFields(ctx context.Context, request models.RegisterRequest) (*ValidationError, error) {
	result := &ValidationError{Fields: map[string][]string{}}

	if err := validateRequest(request); err != nil {
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			return nil, err
		}
		result = validationErr
	}

	uniques := []struct {
		field   string
		message string
		lookup  func() (*user.User, error)
	}{
		{"email", emailTakenMessage, func() (*user.User, error) { return s.users.GetUserByEmail(ctx, request.Email) }},
		{"username", usernameTakenMessage, func() (*user.User, error) { return s.users.GetUserByUsername(ctx, request.Username) }},
	}
	for _, u := range uniques {
		if len(result.Fields[u.field]) > 0 {
			continue
		}
		_, err := u.lookup()
		if errors.Is(err, models.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Fields[u.field] = append(result.Fields[u.field], u.message)
	}

	if len(result.Fields) == 0 {
		return nil, nil
	}

	return result, nil
}

// Login checks the credentials and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, request models.LoginRequest) (*user.User, models.TokenPair, error) {
	if err := validateRequest(request); err != nil {
		return nil, models.TokenPair{}, err
	}

	usr, err := s.users.GetUserByEmail(ctx, request.Email)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, models.TokenPair{}, newValidationError(NonFieldErrors, "Email does not exist.")
	}
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	err = usr.CheckPassword(request.Password)
	if errors.Is(err, user.ErrPasswordMismatch) {
		return nil, models.TokenPair{}, newValidationError(NonFieldErrors, "Incorrect password.")
	}
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	tokens, err := s.tokens.IssueTokenPair(usr.ID)
	if err != nil {
		return nil, models.TokenPair{}, err
	}

	return usr, tokens, nil
}

// Logout blacklists the refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return auth.ErrInvalidToken
	}

	claims, err := s.tokens.ParseRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}

	return s.tokens.Revoke(ctx, claims)
}

// RefreshTokens exchanges a refresh token for a new pair and blacklists the old one.
func (s *AuthService) RefreshTokens(ctx context.Context, request models.RefreshRequest) (models.TokenPair, error) {
	if err := validateRequest(request); err != nil {
		return models.TokenPair{}, err
	}

	claims, err := s.tokens.ParseRefreshToken(ctx, request.Refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	if _, err := s.users.GetUserByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.TokenPair{}, auth.ErrInvalidToken
		}
		return models.TokenPair{}, err
	}

	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.IssueTokenPair(claims.UserID)
}

func (s *AuthService) GetCurrentUser(ctx context.Context, userID int64) (*user.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// DeleteUser removes targetUserID. Any authenticated caller may delete any user.
func (s *AuthService) DeleteUser(ctx context.Context, targetUserID int64) error {
	return s.users.DeleteUser(ctx, targetUserID)
}
