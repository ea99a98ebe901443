// Package memorystorage keeps users, shortened URLs and blacklisted tokens
// in process memory. It is used when no database DSN is configured and by tests.
package memorystorage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

type blacklistEntry struct {
	userID    int64
	expiresAt time.Time
}

// MemoryStorage is a mutex-guarded storage. Unique email, username,
// short code and token id are enforced the way database constraints would be.
type MemoryStorage struct {
	mu sync.RWMutex

	users           map[int64]*user.User
	usersByEmail    map[string]int64
	usersByUsername map[string]int64
	nextUserID      int64

	// urls keeps insertion order.
	urls      []*models.ShortenedURL
	nextURLID int64

	blacklist map[string]blacklistEntry

	now func() time.Time
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:           map[int64]*user.User{},
		usersByEmail:    map[string]int64{},
		usersByUsername: map[string]int64{},
		nextUserID:      1,
		urls:            []*models.ShortenedURL{},
		nextURLID:       1,
		blacklist:       map[string]blacklistEntry{},
		now:             time.Now,
	}, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, usr *user.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByEmail[usr.Email]; taken {
		return 0, models.ErrEmailTaken
	}
	if _, taken := s.usersByUsername[usr.Username]; taken {
		return 0, models.ErrUsernameTaken
	}

	stored := *usr
	stored.ID = s.nextUserID
	s.nextUserID++

	s.users[stored.ID] = &stored
	s.usersByEmail[stored.Email] = stored.ID
	s.usersByUsername[stored.Username] = stored.ID

	return stored.ID, nil
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usr, ok := s.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	result := *usr

	return &result, nil
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.usersByEmail[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	result := *s.users[userID]

	return &result, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.usersByUsername[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	result := *s.users[userID]

	return &result, nil
}

// DeleteUser removes the user and detaches their URLs.
func (s *MemoryStorage) DeleteUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usr, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}

	delete(s.usersByEmail, usr.Email)
	delete(s.usersByUsername, usr.Username)
	delete(s.users, userID)

	for _, u := range s.urls {
		if u.OwnerID != nil && *u.OwnerID == userID {
			u.OwnerID = nil
		}
	}

	return nil
}

func (s *MemoryStorage) IsShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findByCode(shortCode) >= 0, nil
}

// InsertShortenedURL stores u and fills its ID and CreatedAt.
func (s *MemoryStorage) InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByCode(u.ShortCode) >= 0 {
		return models.ErrShortCodeTaken
	}
	if u.OwnerID != nil {
		if _, ok := s.users[*u.OwnerID]; !ok {
			return models.ErrUserNotFound
		}
	}

	u.ID = s.nextURLID
	s.nextURLID++
	u.CreatedAt = s.now().UTC()
	u.ClickCount = 0

	stored := copyURL(u)
	s.urls = append(s.urls, &stored)

	return nil
}

func (s *MemoryStorage) FindUserURLByOriginal(
	ctx context.Context,
	ownerID int64,
	originalURL string,
) (*models.ShortenedURL, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.urls {
		if u.OriginalURL == originalURL && u.OwnerID != nil && *u.OwnerID == ownerID {
			result := copyURL(u)
			return &result, true, nil
		}
	}

	return nil, false, nil
}

func (s *MemoryStorage) GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := funk.Filter(s.urls, func(u *models.ShortenedURL) bool {
		return u.OwnerID != nil && *u.OwnerID == ownerID
	}).([]*models.ShortenedURL)

	result := make(models.UserURLs, 0, len(owned))
	for _, u := range owned {
		result = append(result, copyURL(u))
	}

	return result, nil
}

func (s *MemoryStorage) DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findByCode(shortCode)
	if idx < 0 {
		return false, nil
	}
	u := s.urls[idx]
	if u.OwnerID == nil || *u.OwnerID != ownerID {
		return false, nil
	}

	s.urls = append(s.urls[:idx], s.urls[idx+1:]...)

	return true, nil
}

// IncrementClickCount bumps the counter of shortCode and returns its original URL.
func (s *MemoryStorage) IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findByCode(shortCode)
	if idx < 0 {
		return "", false, nil
	}
	s.urls[idx].ClickCount++

	return s.urls[idx].OriginalURL, true, nil
}

func (s *MemoryStorage) GetNumberOfShortenedURLs(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.urls)), nil
}

func (s *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

// BlacklistToken records tokenID. It returns false if the token was already listed.
func (s *MemoryStorage) BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneBlacklist()

	if _, listed := s.blacklist[tokenID]; listed {
		return false, nil
	}
	s.blacklist[tokenID] = blacklistEntry{userID: userID, expiresAt: expiresAt}

	return true, nil
}

func (s *MemoryStorage) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, listed := s.blacklist[tokenID]

	return listed, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// pruneBlacklist drops entries of tokens that expired on their own. Callers hold mu.
func (s *MemoryStorage) pruneBlacklist() {
	now := s.now()
	for tokenID, entry := range s.blacklist {
		if entry.expiresAt.Before(now) {
			delete(s.blacklist, tokenID)
		}
	}
}

func (s *MemoryStorage) findByCode(shortCode string) int {
	return funk.IndexOf(funk.Map(s.urls, func(u *models.ShortenedURL) string {
		return u.ShortCode
	}), shortCode)
}

func copyURL(u *models.ShortenedURL) models.ShortenedURL {
	result := *u
	if u.OwnerID != nil {
		ownerID := *u.OwnerID
		result.OwnerID = &ownerID
	}

	return result
}

type SnapshotUser struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type SnapshotToken struct {
	TokenID   string    `json:"jti"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Snapshot is the serializable state of a MemoryStorage.
type Snapshot struct {
	Users     []SnapshotUser        `json:"users"`
	URLs      []models.ShortenedURL `json:"urls"`
	Blacklist []SnapshotToken       `json:"blacklist"`
}

// Snapshot copies the current state. Users are ordered by ID, URLs by insertion.
func (s *MemoryStorage) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneBlacklist()

	snapshot := Snapshot{
		Users:     make([]SnapshotUser, 0, len(s.users)),
		URLs:      make([]models.ShortenedURL, 0, len(s.urls)),
		Blacklist: make([]SnapshotToken, 0, len(s.blacklist)),
	}

	for id := int64(1); id < s.nextUserID; id++ {
		if usr, ok := s.users[id]; ok {
			snapshot.Users = append(snapshot.Users, SnapshotUser{
				ID:           usr.ID,
				Email:        usr.Email,
				Username:     usr.Username,
				PasswordHash: usr.PasswordHash,
			})
		}
	}
	for _, u := range s.urls {
		snapshot.URLs = append(snapshot.URLs, copyURL(u))
	}
	for tokenID, entry := range s.blacklist {
		snapshot.Blacklist = append(snapshot.Blacklist, SnapshotToken{
			TokenID:   tokenID,
			UserID:    entry.userID,
			ExpiresAt: entry.expiresAt,
		})
	}

	return snapshot
}

// Restore replaces the state with snapshot. A snapshot breaking a uniqueness
// rule is rejected and the storage is left unchanged.
func (s *MemoryStorage) Restore(snapshot Snapshot) error {
	users := map[int64]*user.User{}
	byEmail := map[string]int64{}
	byUsername := map[string]int64{}
	nextUserID := int64(1)

	for _, su := range snapshot.Users {
		if _, dup := users[su.ID]; dup || su.ID <= 0 {
			return fmt.Errorf("in internal/db/memorystorage/memorystorage.go/Restore(): bad user id %d", su.ID)
		}
		if _, taken := byEmail[su.Email]; taken {
			return models.ErrEmailTaken
		}
		if _, taken := byUsername[su.Username]; taken {
			return models.ErrUsernameTaken
		}

		users[su.ID] = &user.User{ID: su.ID, Email: su.Email, Username: su.Username, PasswordHash: su.PasswordHash}
		byEmail[su.Email] = su.ID
		byUsername[su.Username] = su.ID
		if su.ID >= nextUserID {
			nextUserID = su.ID + 1
		}
	}

	urls := make([]*models.ShortenedURL, 0, len(snapshot.URLs))
	codes := map[string]bool{}
	nextURLID := int64(1)
	for i := range snapshot.URLs {
		u := copyURL(&snapshot.URLs[i])
		if codes[u.ShortCode] {
			return models.ErrShortCodeTaken
		}
		codes[u.ShortCode] = true
		if u.OwnerID != nil {
			if _, ok := users[*u.OwnerID]; !ok {
				u.OwnerID = nil
			}
		}
		if u.ID >= nextURLID {
			nextURLID = u.ID + 1
		}
		urls = append(urls, &u)
	}

	blacklist := make(map[string]blacklistEntry, len(snapshot.Blacklist))
	for _, token := range snapshot.Blacklist {
		blacklist[token.TokenID] = blacklistEntry{userID: token.UserID, expiresAt: token.ExpiresAt}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = users
	s.usersByEmail = byEmail
	s.usersByUsername = byUsername
	s.nextUserID = nextUserID
	s.urls = urls
	s.nextURLID = nextURLID
	s.blacklist = blacklist
	s.pruneBlacklist()

	return nil
}
