// Package app wires configuration, storage, token handling and routing
// into a runnable HTTP service with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/shortlink/internal/auth"
	"github.com/patric-chuzhbe/shortlink/internal/config"
	"github.com/patric-chuzhbe/shortlink/internal/db/jsondb"
	"github.com/patric-chuzhbe/shortlink/internal/db/memorystorage"
	"github.com/patric-chuzhbe/shortlink/internal/db/postgresdb"
	"github.com/patric-chuzhbe/shortlink/internal/db/redisblacklist"
	"github.com/patric-chuzhbe/shortlink/internal/ipchecker"
	"github.com/patric-chuzhbe/shortlink/internal/logger"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/router"
	"github.com/patric-chuzhbe/shortlink/internal/service"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const shutdownTimeout = 10 * time.Second

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (int64, error)
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

type urlsKeeper interface {
	IsShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error
	FindUserURLByOriginal(ctx context.Context, ownerID int64, originalURL string) (*models.ShortenedURL, bool, error)
	GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error)
	DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error)
	IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error)
	GetNumberOfShortenedURLs(ctx context.Context) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type tokenBlacklist interface {
	BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error)
	IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error)
	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	urlsKeeper
	tokenBlacklist
	pinger
}

// App owns the storage connections and the HTTP handler of the service.
type App struct {
	cfg         *config.Config
	db          storage
	redis       *redisblacklist.RedisBlacklist
	httpHandler http.Handler
}

// New initializes the logger, opens the storage selected by cfg and builds the router.
func New(cfg *config.Config) (*App, error) {
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, err
	}

	db, err := getStorageByType(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg: cfg,
		db:  db,
	}

	var blacklist tokenBlacklist = db
	var dependencies []service.Pinger
	if cfg.BlacklistInRedis() {
		app.redis, err = redisblacklist.NewFromAddr(context.Background(), cfg.RedisAddr)
		if err != nil {
			return nil, errors.Join(err, db.Close())
		}
		blacklist = app.redis
		dependencies = append(dependencies, app.redis)
		logger.Log.Infow("token blacklist is kept in redis", "addr", cfg.RedisAddr)
	}

	checker, err := ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		return nil, errors.Join(err, app.closeStorages())
	}

	codes, err := service.NewCodeGenerator(cfg.ShortCodeMaxAttempts)
	if err != nil {
		return nil, errors.Join(err, app.closeStorages())
	}

	tokens := auth.New(
		app.db,
		blacklist,
		[]byte(cfg.SecretKey),
		cfg.AccessTokenLifetime,
		cfg.RefreshTokenLifetime,
	)

	app.httpHandler = router.New(
		service.NewAuthService(app.db, tokens),
		service.NewShortenerService(app.db, codes, cfg.ShortURLBase, dependencies...),
		tokens,
		checker,
		cfg.AllowedOrigins,
	)

	return app, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts the server down and closes the storages.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing connections and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Join(fmt.Errorf("server shutdown error: %w", err), a.closeStorages())
		}

		return a.closeStorages()

	case err := <-serverErrCh:
		return errors.Join(fmt.Errorf("server error: %w", err), a.closeStorages())
	}
}

// Close flushes the logger.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func (a *App) closeStorages() error {
	var redisErr error
	if a.redis != nil {
		redisErr = a.redis.Close()
	}

	if err := errors.Join(redisErr, a.db.Close()); err != nil {
		logger.Log.Errorw("unable to close storages", zap.Error(err))
		return err
	}

	return nil
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.FileStoragePath != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.FileStoragePath)
	}

	logger.Log.Warnln("neither DATABASE_DSN nor FILE_STORAGE_PATH is set, data is kept in memory and lost on restart")

	return memorystorage.New()
}
