package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/shortlink/internal/logger"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

// ErrShortCodeExhausted is returned when no unused short code was found within the attempt limit.
var ErrShortCodeExhausted = errors.New("the number of attempts to generate a unique short code has been exceeded")

type urlStore interface {
	IsShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error
	FindUserURLByOriginal(ctx context.Context, ownerID int64, originalURL string) (*models.ShortenedURL, bool, error)
	GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error)
	DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error)
	IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error)
	GetNumberOfShortenedURLs(ctx context.Context) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

// Pinger is anything whose health is part of the service health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type shortenerStorage interface {
	urlStore
	Pinger
}

// ShortenerService creates, lists, deletes and resolves short codes.
type ShortenerService struct {
	db           shortenerStorage
	codes        *CodeGenerator
	shortURLBase string
	dependencies []Pinger
}

// NewShortenerService builds the service over db. Ping also checks each of dependencies.
func NewShortenerService(
	db shortenerStorage,
	codes *CodeGenerator,
	shortURLBase string,
	dependencies ...Pinger,
) *ShortenerService {
	return &ShortenerService{
		db:           db,
		codes:        codes,
		shortURLBase: shortURLBase,
		dependencies: dependencies,
	}
}

// Shorten returns the link for request.OriginalURL. An authenticated owner
// gets back their existing link for the same URL, reported with created == false.
// Anonymous requests always create a new link.
func (s *ShortenerService) Shorten(
	ctx context.Context,
	request models.ShortenRequest,
	owner *user.User,
) (*models.ShortenedURL, bool, error) {
	if err := validateRequest(request); err != nil {
		return nil, false, err
	}
	if !isValidURL(request.OriginalURL) {
		return nil, false, newValidationError("original_url", "Enter a valid URL.")
	}

	var ownerID *int64
	if owner != nil {
		ownerID = &owner.ID

		existing, found, err := s.db.FindUserURLByOriginal(ctx, owner.ID, request.OriginalURL)
		if err != nil {
			return nil, false, err
		}
		if found {
			existing.ShortenedURL = s.GetShortURL(existing.ShortCode)
			return existing, false, nil
		}
	}

	for attempt := 0; attempt < s.codes.maxAttempts; attempt++ {
		code := s.codes.Generate()

		exists, err := s.db.IsShortCodeExists(ctx, code)
		if err != nil {
			return nil, false, err
		}
		if exists {
			continue
		}

		shortened := &models.ShortenedURL{
			OriginalURL:  request.OriginalURL,
			ShortCode:    code,
			ShortenedURL: s.GetShortURL(code),
			OwnerID:      ownerID,
		}
		err = s.db.InsertShortenedURL(ctx, shortened)
		if errors.Is(err, models.ErrShortCodeTaken) {
			logger.Log.Debugln("short code taken by a concurrent insert, retrying", "code", code)
			continue
		}
		if err != nil {
			return nil, false, err
		}

		return shortened, true, nil
	}

	logger.Log.Errorw("unable to allocate a short code", "attempts", s.codes.maxAttempts, zap.Error(ErrShortCodeExhausted))

	return nil, false, ErrShortCodeExhausted
}

func (s *ShortenerService) ListUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error) {
	return s.db.GetUserURLs(ctx, ownerID)
}

// DeleteURL removes shortCode only if it belongs to ownerID. Foreign and
// missing codes both yield models.ErrURLNotFound.
func (s *ShortenerService) DeleteURL(ctx context.Context, ownerID int64, shortCode string) error {
	deleted, err := s.db.DeleteUserURL(ctx, ownerID, shortCode)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrURLNotFound
	}

	return nil
}

// Redirect counts a click on shortCode and returns the original URL.
func (s *ShortenerService) Redirect(ctx context.Context, shortCode string) (string, error) {
	originalURL, found, err := s.db.IncrementClickCount(ctx, shortCode)
	if err != nil {
		return "", err
	}
	if !found {
		return "", models.ErrURLNotFound
	}

	return originalURL, nil
}

// GetInternalStats returns the total number of shortened URLs and users.
func (s *ShortenerService) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	urls, err := s.db.GetNumberOfShortenedURLs(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		URLs:  urls,
		Users: users,
	}, nil
}

// Ping checks the storage and then the extra dependencies, so a dead token blacklist fails it too.
func (s *ShortenerService) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}

	for _, dependency := range s.dependencies {
		if err := dependency.Ping(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *ShortenerService) GetShortURL(shortCode string) string {
	return strings.TrimRight(s.shortURLBase, "/") + "/" + shortCode
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || u.Hostname() == "" {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") || !isValidHost(u.Hostname()) {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp", "ftps":
		return true
	}

	return false
}
