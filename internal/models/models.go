package models

import (
	"errors"
	"time"

	"github.com/patric-chuzhbe/shortlink/internal/user"
)

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,max=150,username"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type TokenPair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

type LoggedInUser struct {
	user.View
	Tokens TokenPair `json:"tokens"`
}

type LoginResponse struct {
	User    LoggedInUser `json:"user"`
	Message string       `json:"message"`
}

type UserInfoResponse struct {
	User    user.View `json:"user"`
	Message string    `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type FailureResponse struct {
	Errors  map[string][]string `json:"errors,omitempty"`
	Error   string              `json:"error,omitempty"`
	Message string              `json:"message"`
}

type TokenErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

type ShortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required,max=100000"`
}

type ShortenResponse struct {
	OriginalURL  string `json:"original_url"`
	ShortenedURL string `json:"shortened_url"`
}

type NotFoundResponse struct {
	Error string `json:"error"`
}

// ShortenedURL is a stored short code with its target.
type ShortenedURL struct {
	ID           int64     `json:"id"`
	OriginalURL  string    `json:"original_url"`
	ShortCode    string    `json:"short_code"`
	ShortenedURL string    `json:"shortened_url"`
	CreatedAt    time.Time `json:"created_at"`
	ClickCount   int64     `json:"click_count"`

	// OwnerID is nil for anonymous links and for links of deleted users.
	OwnerID *int64 `json:"user"`
}

type UserURLs []ShortenedURL

type InternalStatsResponse struct {
	URLs  int64 `json:"urls"`
	Users int64 `json:"users"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already taken")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrURLNotFound    = errors.New("shortened URL not found")
	ErrShortCodeTaken = errors.New("short code already taken")
)
