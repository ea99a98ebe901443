// Package mockstorage provides a testify mock of the storage used by the
// services. Router tests use it to drive failure paths that the in-memory
// storage cannot produce.
package mockstorage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

// StorageMock implements the user, URL, blacklist and health methods of the storages.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, when set, replaces the testify handler of GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfShortenedURLs, when set, replaces the testify handler of GetNumberOfShortenedURLs.
	OnGetNumberOfShortenedURLs func(ctx context.Context) (int64, error)
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) (int64, error) {
	args := m.Called(ctx, usr)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	args := m.Called(ctx, username)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) DeleteUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *StorageMock) IsShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	args := m.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *StorageMock) FindUserURLByOriginal(
	ctx context.Context,
	ownerID int64,
	originalURL string,
) (*models.ShortenedURL, bool, error) {
	args := m.Called(ctx, ownerID, originalURL)
	u, _ := args.Get(0).(*models.ShortenedURL)
	return u, args.Bool(1), args.Error(2)
}

func (m *StorageMock) GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error) {
	args := m.Called(ctx, ownerID)
	urls, _ := args.Get(0).(models.UserURLs)
	return urls, args.Error(1)
}

func (m *StorageMock) DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error) {
	args := m.Called(ctx, ownerID, shortCode)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error) {
	args := m.Called(ctx, shortCode)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *StorageMock) GetNumberOfShortenedURLs(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfShortenedURLs != nil {
		return m.OnGetNumberOfShortenedURLs(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StorageMock) BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, tokenID, userID, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}
