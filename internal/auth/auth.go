// Package auth issues, validates and revokes JWT access and refresh tokens,
// and provides the bearer token middleware that resolves the calling user.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/shortlink/internal/logger"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("token is invalid or expired")
	ErrWrongTokenType   = errors.New("token has wrong type")
	ErrTokenBlacklisted = errors.New("token is blacklisted")
	ErrNoCredentials    = errors.New("authentication credentials were not provided")
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)
}

type tokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error)
	IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

// Auth is the token issuer.
type Auth struct {
	users     userKeeper
	blacklist tokenBlacklist

	signingKey      []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration

	now func() time.Time
}

// Claims represents the JWT claims of both token types.
// The jti lives in RegisteredClaims.ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserKey is the context key of the authenticated *user.User.
const UserKey ContextKey = "user"

func New(
	users userKeeper,
	blacklist tokenBlacklist,
	signingKey []byte,
	accessLifetime time.Duration,
	refreshLifetime time.Duration,
) *Auth {
	return &Auth{
		users:           users,
		blacklist:       blacklist,
		signingKey:      signingKey,
		accessLifetime:  accessLifetime,
		refreshLifetime: refreshLifetime,
		now:             time.Now,
	}
}

// IssueTokenPair signs a fresh access and refresh token for userID.
func (a *Auth) IssueTokenPair(userID int64) (models.TokenPair, error) {
	access, err := a.buildJWTString(userID, TokenTypeAccess, a.accessLifetime)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := a.buildJWTString(userID, TokenTypeRefresh, a.refreshLifetime)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Refresh: refresh, Access: access}, nil
}

// ParseAccessToken verifies signature, expiry and type of an access token.
func (a *Auth) ParseAccessToken(tokenString string) (*Claims, error) {
	return a.parse(tokenString, TokenTypeAccess)
}

// ParseRefreshToken verifies a refresh token and checks it is not blacklisted.
func (a *Auth) ParseRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := a.parse(tokenString, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	listed, err := a.blacklist.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if listed {
		return nil, ErrTokenBlacklisted
	}

	return claims, nil
}

// Revoke blacklists the refresh token described by claims.
// It returns ErrTokenBlacklisted if another call revoked it first.
func (a *Auth) Revoke(ctx context.Context, claims *Claims) error {
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	added, err := a.blacklist.BlacklistToken(ctx, claims.ID, claims.UserID, expiresAt)
	if err != nil {
		return err
	}
	if !added {
		return ErrTokenBlacklisted
	}

	return nil
}

// UserFromContext returns the user put into ctx by the middlewares.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	usr, ok := ctx.Value(UserKey).(*user.User)
	return usr, ok && usr != nil
}

// AuthenticateUser rejects requests without a valid bearer access token with 401.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		usr, err := a.userFromRequest(request)
		if err != nil {
			a.writeAuthError(response, err)
			return
		}
		if usr == nil {
			a.writeAuthError(response, ErrNoCredentials)
			return
		}

		h.ServeHTTP(response, request.WithContext(context.WithValue(request.Context(), UserKey, usr)))
	}

	return http.HandlerFunc(middleware)
}

// IdentifyUser lets anonymous requests through and resolves the user when a
// bearer token is present. A present but invalid token is still rejected with 401.
func (a *Auth) IdentifyUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		usr, err := a.userFromRequest(request)
		if err != nil {
			a.writeAuthError(response, err)
			return
		}
		if usr != nil {
			request = request.WithContext(context.WithValue(request.Context(), UserKey, usr))
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// userFromRequest returns nil without error when no bearer token is sent.
func (a *Auth) userFromRequest(request *http.Request) (*user.User, error) {
	tokenString, present := bearerToken(request)
	if !present {
		return nil, nil
	}

	claims, err := a.ParseAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	usr, err := a.users.GetUserByID(request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return usr, nil
}

func (a *Auth) writeAuthError(response http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	body := models.TokenErrorResponse{
		Detail: "Given token not valid for any token type",
		Code:   "token_not_valid",
	}

	switch {
	case errors.Is(err, ErrNoCredentials):
		body = models.TokenErrorResponse{Detail: "Authentication credentials were not provided."}
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrWrongTokenType):
	default:
		logger.Log.Errorw("unable to authenticate user", zap.Error(err))
		status = http.StatusInternalServerError
		body = models.TokenErrorResponse{Detail: "An unexpected error occurred. Please try again later."}
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if err := json.NewEncoder(response).Encode(body); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
	}
}

func (a *Auth) parse(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingKey, nil
		},
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (a *Auth) buildJWTString(userID int64, tokenType string, lifetime time.Duration) (string, error) {
	issuedAt := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
		},
		UserID:    userID,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func bearerToken(request *http.Request) (string, bool) {
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	return strings.TrimSpace(token), true
}
