// Package postgresdb provides a PostgreSQL-based storage for users,
// shortened URLs and the refresh token blacklist.
// The schema is managed by goose migrations applied in New.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"

	constraintUsersEmail     = "uq_users_email"
	constraintUsersUsername  = "uq_users_username"
	constraintShortCode      = "uq_shortened_urls_short_code"
	shortenedURLSelectFields = `id, original_url, short_code, shortened_url, created_at, click_count, owner_id`
)

// PostgresDB is a PostgreSQL-backed storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type rowScanner interface {
	Scan(dest ...any) error
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops every table of the public schema before migrating.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New connects to the database, applies the migrations from migrationsDir
// and returns a ready PostgresDB.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `goose.UpContext()` calling: %w", err)
	}

	return result, nil
}

// CreateUser inserts usr and returns its new ID.
// Unique violations are reported as models.ErrEmailTaken or models.ErrUsernameTaken.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) (int64, error) {
	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		usr.Email,
		usr.Username,
		usr.PasswordHash,
	)

	var userID int64
	if err := row.Scan(&userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			switch pgErr.ConstraintName {
			case constraintUsersEmail:
				return 0, models.ErrEmailTaken
			case constraintUsersUsername:
				return 0, models.ErrUsernameTaken
			}
		}
		return 0, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/CreateUser(): error while `row.Scan()` calling: %w", err)
	}

	return userID, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, userID int64) (*user.User, error) {
	return db.getUser(
		ctx,
		`SELECT id, email, username, password_hash FROM users WHERE id = $1`,
		userID,
	)
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return db.getUser(
		ctx,
		`SELECT id, email, username, password_hash FROM users WHERE email = $1`,
		email,
	)
}

func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	return db.getUser(
		ctx,
		`SELECT id, email, username, password_hash FROM users WHERE username = $1`,
		username,
	)
}

// DeleteUser removes the user. The foreign key nulls the owner of their URLs.
func (db *PostgresDB) DeleteUser(ctx context.Context, userID int64) error {
	result, err := db.database.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/DeleteUser(): error while `db.database.ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/DeleteUser(): error while `result.RowsAffected()` calling: %w", err)
	}
	if affected == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

func (db *PostgresDB) IsShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	var exists bool
	err := db.database.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM shortened_urls WHERE short_code = $1)`,
		shortCode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/IsShortCodeExists(): error while `Scan()` calling: %w", err)
	}

	return exists, nil
}

// InsertShortenedURL stores u and fills its ID, CreatedAt and ClickCount.
func (db *PostgresDB) InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO shortened_urls (original_url, short_code, shortened_url, owner_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id, created_at, click_count
		`,
		u.OriginalURL,
		u.ShortCode,
		u.ShortenedURL,
		u.OwnerID,
	)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.ClickCount); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == constraintShortCode {
				return models.ErrShortCodeTaken
			}
			if pgErr.Code == foreignKeyViolationCode {
				return models.ErrUserNotFound
			}
		}
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/InsertShortenedURL(): error while `row.Scan()` calling: %w", err)
	}

	return nil
}

func (db *PostgresDB) FindUserURLByOriginal(
	ctx context.Context,
	ownerID int64,
	originalURL string,
) (*models.ShortenedURL, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT `+shortenedURLSelectFields+`
			FROM shortened_urls
			WHERE owner_id = $1 AND original_url = $2
			ORDER BY id
			LIMIT 1`,
		ownerID,
		originalURL,
	)

	return scanOptionalShortenedURL(row, "FindUserURLByOriginal")
}

func (db *PostgresDB) GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT `+shortenedURLSelectFields+` FROM shortened_urls WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/GetUserURLs(): error while `db.database.QueryContext()` calling: %w", err)
	}
	defer rows.Close()

	result := models.UserURLs{}
	for rows.Next() {
		u, err := scanShortenedURL(rows)
		if err != nil {
			return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/GetUserURLs(): error while `scanShortenedURL()` calling: %w", err)
		}
		result = append(result, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/GetUserURLs(): error while `rows.Err()` calling: %w", err)
	}

	return result, nil
}

func (db *PostgresDB) DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error) {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM shortened_urls WHERE short_code = $1 AND owner_id = $2`,
		shortCode,
		ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/DeleteUserURL(): error while `db.database.ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/DeleteUserURL(): error while `result.RowsAffected()` calling: %w", err)
	}

	return affected > 0, nil
}

// IncrementClickCount bumps the counter in a single statement and returns the original URL.
func (db *PostgresDB) IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error) {
	var originalURL string
	err := db.database.QueryRowContext(
		ctx,
		`UPDATE shortened_urls SET click_count = click_count + 1 WHERE short_code = $1 RETURNING original_url`,
		shortCode,
	).Scan(&originalURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/IncrementClickCount(): error while `Scan()` calling: %w", err)
	}

	return originalURL, true, nil
}

func (db *PostgresDB) GetNumberOfShortenedURLs(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM shortened_urls`)
}

func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// BlacklistToken records tokenID. It returns false if the token was already listed.
// Entries of tokens that expired on their own are pruned on the way.
func (db *PostgresDB) BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error) {
	if _, err := db.database.ExecContext(ctx, `DELETE FROM blacklisted_tokens WHERE expires_at < now()`); err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/BlacklistToken(): error while pruning: %w", err)
	}

	result, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO blacklisted_tokens (jti, user_id, expires_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (jti) DO NOTHING
		`,
		tokenID,
		userID,
		expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/BlacklistToken(): error while `db.database.ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/BlacklistToken(): error while `result.RowsAffected()` calling: %w", err)
	}

	return affected > 0, nil
}

func (db *PostgresDB) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	var listed bool
	err := db.database.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE jti = $1)`,
		tokenID,
	).Scan(&listed)
	if err != nil {
		return false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/IsTokenBlacklisted(): error while `Scan()` calling: %w", err)
	}

	return listed, nil
}

// Ping verifies connectivity within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) getUser(ctx context.Context, query string, arg any) (*user.User, error) {
	usr := &user.User{}
	err := db.database.QueryRowContext(ctx, query, arg).
		Scan(&usr.ID, &usr.Email, &usr.Username, &usr.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/getUser(): error while `Scan()` calling: %w", err)
	}

	return usr, nil
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/count(): error while `Scan()` calling: %w", err)
	}

	return result, nil
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

func scanShortenedURL(row rowScanner) (*models.ShortenedURL, error) {
	u := &models.ShortenedURL{}
	var ownerID sql.NullInt64
	if err := row.Scan(
		&u.ID,
		&u.OriginalURL,
		&u.ShortCode,
		&u.ShortenedURL,
		&u.CreatedAt,
		&u.ClickCount,
		&ownerID,
	); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		u.OwnerID = &ownerID.Int64
	}

	return u, nil
}

func scanOptionalShortenedURL(row rowScanner, caller string) (*models.ShortenedURL, bool, error) {
	u, err := scanShortenedURL(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/%s(): error while `scanShortenedURL()` calling: %w", caller, err)
	}

	return u, true, nil
}
