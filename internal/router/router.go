// Package router wires the HTTP API: routes, request decoding, and the
// mapping of service results and errors to status codes and JSON bodies.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/shortlink/internal/auth"
	"github.com/patric-chuzhbe/shortlink/internal/gzippedhttp"
	"github.com/patric-chuzhbe/shortlink/internal/ipchecker"
	"github.com/patric-chuzhbe/shortlink/internal/logger"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/service"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const (
	msgUnexpected     = "An unexpected error occurred. Please try again later."
	msgTryAgainLater  = "An error occurred. Please try again later."
	msgURLNotFound    = "Shortened URL not found"
	msgUserNotFound   = "User not found"
	msgTokenNotValid  = "Token is invalid or expired"
	msgTokenListed    = "Token is blacklisted"
	codeTokenNotValid = "token_not_valid"
)

type authService interface {
	Register(ctx context.Context, request models.RegisterRequest) (int64, error)
	Login(ctx context.Context, request models.LoginRequest) (*user.User, models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshTokens(ctx context.Context, request models.RefreshRequest) (models.TokenPair, error)
	GetCurrentUser(ctx context.Context, userID int64) (*user.User, error)
	DeleteUser(ctx context.Context, targetUserID int64) error
}

type shortenerService interface {
	Shorten(ctx context.Context, request models.ShortenRequest, owner *user.User) (*models.ShortenedURL, bool, error)
	ListUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error)
	DeleteURL(ctx context.Context, ownerID int64, shortCode string) error
	Redirect(ctx context.Context, shortCode string) (string, error)
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	IdentifyUser(h http.Handler) http.Handler
}

// Router holds the services the HTTP handlers call.
type Router struct {
	auth      authService
	shortener shortenerService
}

// New builds the chi mux with every route and middleware.
func New(
	accounts authService,
	links shortenerService,
	authMiddleware authenticator,
	ipChecker *ipchecker.IPChecker,
	allowedOrigins []string,
) *chi.Mux {
	r := &Router{
		auth:      accounts,
		shortener: links,
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		logger.WithLoggingHTTPMiddleware,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-CSRFToken"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		gzippedhttp.UngzipRequest,
	)

	router.Route("/authentication", func(router chi.Router) {
		router.Post(`/register/`, r.PostAuthenticationRegister)
		router.Post(`/login/`, r.PostAuthenticationLogin)
		router.Post(`/token/refresh/`, r.PostAuthenticationTokenRefresh)

		router.Group(func(router chi.Router) {
			router.Use(authMiddleware.AuthenticateUser)
			router.Post(`/logout/`, r.PostAuthenticationLogout)
			router.Delete(`/delete/{userID}/`, r.DeleteAuthenticationDelete)
			router.Get(`/user-info/`, r.GetAuthenticationUserinfo)
		})
	})

	router.Route("/shortener", func(router chi.Router) {
		router.Use(gzippedhttp.GzipResponse)
		router.With(authMiddleware.IdentifyUser).Post(`/shorten-url/`, r.PostShortenerShortenurl)
		router.With(authMiddleware.AuthenticateUser).Get(`/user-urls/`, r.GetShortenerUserurls)
		router.With(authMiddleware.AuthenticateUser).Delete(`/delete-url/{shortCode}/`, r.DeleteShortenerDeleteurl)
	})

	router.Get(`/ping`, r.GetPing)
	router.With(ipChecker.TrustedOnly).Get(`/api/internal/stats`, r.GetApiinternalstats)
	router.Get(`/{shortCode}`, r.GetRedirecttofullurl)

	return router
}

// PostAuthenticationRegister handles POST /authentication/register/.
func (r *Router) PostAuthenticationRegister(response http.ResponseWriter, request *http.Request) {
	const failed = "Registration failed."

	var body models.RegisterRequest
	if err := decodeJSON(request, &body); err != nil {
		writeValidationFailure(response, err, failed)
		return
	}

	if _, err := r.auth.Register(request.Context(), body); err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			logger.Log.Debugln("Registration failed due to validation errors:", validationErr.Fields)
			writeValidationFailure(response, validationErr, failed)
			return
		}
		logger.Log.Errorw("unexpected error during registration", zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected, Message: failed})
		return
	}

	writeJSON(response, http.StatusCreated, models.MessageResponse{Message: "Registration successful."})
}

// PostAuthenticationLogin handles POST /authentication/login/.
func (r *Router) PostAuthenticationLogin(response http.ResponseWriter, request *http.Request) {
	const failed = "Login failed."

	var body models.LoginRequest
	if err := decodeJSON(request, &body); err != nil {
		writeValidationFailure(response, err, failed)
		return
	}

	usr, tokens, err := r.auth.Login(request.Context(), body)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			logger.Log.Debugln("Login failed due to validation errors:", validationErr.Fields)
			writeValidationFailure(response, validationErr, failed)
			return
		}
		logger.Log.Errorw("unexpected error during login", zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected, Message: failed})
		return
	}

	writeJSON(response, http.StatusOK, models.LoginResponse{
		User: models.LoggedInUser{
			View:   usr.View(),
			Tokens: tokens,
		},
		Message: "Login successful.",
	})
}

// PostAuthenticationLogout handles POST /authentication/logout/.
// Every failure, including a reused token, is reported as 400.
func (r *Router) PostAuthenticationLogout(response http.ResponseWriter, request *http.Request) {
	var body models.RefreshRequest
	err := decodeJSON(request, &body)
	if err == nil {
		err = r.auth.Logout(request.Context(), body.Refresh)
	}
	if err != nil {
		usr, _ := auth.UserFromContext(request.Context())
		logger.Log.Infow("logout failed", "user_id", userIDOf(usr), zap.Error(err))
		writeJSON(response, http.StatusBadRequest, models.FailureResponse{Error: msgTryAgainLater, Message: "Logout failed."})
		return
	}

	writeJSON(response, http.StatusResetContent, models.MessageResponse{Message: "Logout successful."})
}

// DeleteAuthenticationDelete handles DELETE /authentication/delete/{userID}/.
func (r *Router) DeleteAuthenticationDelete(response http.ResponseWriter, request *http.Request) {
	const failed = "Deletion failed."

	userID, err := strconv.ParseInt(chi.URLParam(request, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(response, http.StatusNotFound, models.FailureResponse{Error: msgUserNotFound, Message: failed})
		return
	}

	if err := r.auth.DeleteUser(request.Context(), userID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			logger.Log.Infow("user to delete not found", "user_id", userID)
			writeJSON(response, http.StatusNotFound, models.FailureResponse{Error: msgUserNotFound, Message: failed})
			return
		}
		logger.Log.Errorw("deletion failed", "user_id", userID, zap.Error(err))
		writeJSON(response, http.StatusBadRequest, models.FailureResponse{Error: msgTryAgainLater, Message: failed})
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetAuthenticationUserinfo handles GET /authentication/user-info/.
func (r *Router) GetAuthenticationUserinfo(response http.ResponseWriter, request *http.Request) {
	const failed = "User retrieval failed."

	caller, ok := auth.UserFromContext(request.Context())
	if !ok {
		writeJSON(response, http.StatusBadRequest, models.FailureResponse{Error: msgTryAgainLater, Message: failed})
		return
	}

	usr, err := r.auth.GetCurrentUser(request.Context(), caller.ID)
	if err != nil {
		logger.Log.Errorw("user retrieval failed", "user_id", caller.ID, zap.Error(err))
		writeJSON(response, http.StatusBadRequest, models.FailureResponse{Error: msgTryAgainLater, Message: failed})
		return
	}

	writeJSON(response, http.StatusOK, models.UserInfoResponse{User: usr.View(), Message: "User retrieval successful."})
}

// PostAuthenticationTokenRefresh handles POST /authentication/token/refresh/.
func (r *Router) PostAuthenticationTokenRefresh(response http.ResponseWriter, request *http.Request) {
	var body models.RefreshRequest
	if err := decodeJSON(request, &body); err != nil {
		writeJSON(response, http.StatusBadRequest, fieldsOf(err))
		return
	}

	tokens, err := r.auth.RefreshTokens(request.Context(), body)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeJSON(response, http.StatusBadRequest, validationErr.Fields)
		case errors.Is(err, auth.ErrTokenBlacklisted):
			writeJSON(response, http.StatusUnauthorized, models.TokenErrorResponse{Detail: msgTokenListed, Code: codeTokenNotValid})
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
			writeJSON(response, http.StatusUnauthorized, models.TokenErrorResponse{Detail: msgTokenNotValid, Code: codeTokenNotValid})
		default:
			logger.Log.Errorw("token refresh failed", zap.Error(err))
			writeJSON(response, http.StatusInternalServerError, models.TokenErrorResponse{Detail: msgUnexpected})
		}
		return
	}

	writeJSON(response, http.StatusOK, tokens)
}

// GetShortenerUserurls handles GET /shortener/user-urls/.
func (r *Router) GetShortenerUserurls(response http.ResponseWriter, request *http.Request) {
	usr, ok := auth.UserFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	urls, err := r.shortener.ListUserURLs(request.Context(), usr.ID)
	if err != nil {
		logger.Log.Errorw("unable to list user urls", "user_id", usr.ID, zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected})
		return
	}
	if urls == nil {
		urls = models.UserURLs{}
	}

	writeJSON(response, http.StatusOK, urls)
}

// PostShortenerShortenurl handles POST /shortener/shorten-url/. The caller is optional.
// A new link answers 201, an existing link of the same user answers 200.
func (r *Router) PostShortenerShortenurl(response http.ResponseWriter, request *http.Request) {
	var body models.ShortenRequest
	if err := decodeJSON(request, &body); err != nil {
		writeJSON(response, http.StatusBadRequest, fieldsOf(err))
		return
	}

	owner, _ := auth.UserFromContext(request.Context())

	shortened, created, err := r.shortener.Shorten(request.Context(), body, owner)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(response, http.StatusBadRequest, validationErr.Fields)
			return
		}
		logger.Log.Errorw("unable to shorten url", "user_id", userIDOf(owner), zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	writeJSON(response, status, models.ShortenResponse{
		OriginalURL:  shortened.OriginalURL,
		ShortenedURL: shortened.ShortenedURL,
	})
}

// DeleteShortenerDeleteurl handles DELETE /shortener/delete-url/{shortCode}/.
func (r *Router) DeleteShortenerDeleteurl(response http.ResponseWriter, request *http.Request) {
	usr, ok := auth.UserFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	err := r.shortener.DeleteURL(request.Context(), usr.ID, chi.URLParam(request, "shortCode"))
	if err != nil {
		if errors.Is(err, models.ErrURLNotFound) {
			writeJSON(response, http.StatusNotFound, models.NotFoundResponse{Error: msgURLNotFound})
			return
		}
		logger.Log.Errorw("unable to delete url", "user_id", usr.ID, zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected})
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

// GetRedirecttofullurl handles GET /{shortCode}: counts the click and redirects with 302.
func (r *Router) GetRedirecttofullurl(response http.ResponseWriter, request *http.Request) {
	originalURL, err := r.shortener.Redirect(request.Context(), chi.URLParam(request, "shortCode"))
	if err != nil {
		if errors.Is(err, models.ErrURLNotFound) {
			writeJSON(response, http.StatusNotFound, models.NotFoundResponse{Error: msgURLNotFound})
			return
		}
		logger.Log.Errorw("unable to resolve short code", zap.Error(err))
		writeJSON(response, http.StatusInternalServerError, models.FailureResponse{Error: msgUnexpected})
		return
	}

	response.Header().Set("Location", originalURL)
	response.WriteHeader(http.StatusFound)
}

// GetPing reports the health of the storage and the token blacklist.
func (r *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := r.shortener.Ping(request.Context()); err != nil {
		logger.Log.Errorw("storage ping failed", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetApiinternalstats serves URL and user counters. Access is limited by ipchecker.TrustedOnly.
func (r *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := r.shortener.GetInternalStats(request.Context())
	if err != nil {
		logger.Log.Errorw("unable to collect internal stats", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

// decodeJSON reads a JSON object into dst. An empty body decodes as {}.
func decodeJSON(request *http.Request, dst any) error {
	err := json.NewDecoder(request.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return &service.ValidationError{
		Fields: map[string][]string{service.NonFieldErrors: {"JSON parse error."}},
	}
}

func fieldsOf(err error) map[string][]string {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}

	return map[string][]string{service.NonFieldErrors: {err.Error()}}
}

func writeValidationFailure(response http.ResponseWriter, err error, message string) {
	writeJSON(response, http.StatusBadRequest, models.FailureResponse{Errors: fieldsOf(err), Message: message})
}

func writeJSON(response http.ResponseWriter, status int, body any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(body); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
	}
}

func userIDOf(usr *user.User) int64 {
	if usr == nil {
		return 0
	}

	return usr.ID
}
