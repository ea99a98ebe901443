package router

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/shortlink/internal/auth"
	"github.com/patric-chuzhbe/shortlink/internal/db/memorystorage"
	"github.com/patric-chuzhbe/shortlink/internal/ipchecker"
	"github.com/patric-chuzhbe/shortlink/internal/mockstorage"
	"github.com/patric-chuzhbe/shortlink/internal/models"
	"github.com/patric-chuzhbe/shortlink/internal/service"
	"github.com/patric-chuzhbe/shortlink/internal/user"
)

const (
	testShortURLBase  = "http://localhost:8080"
	testSigningKey    = "router-test-signing-key-0123456789"
	testTrustedSubnet = "10.0.0.0/8"
	testOrigin        = "http://localhost:5173"
)

var shortURLPattern = regexp.MustCompile(`^http://localhost:8080/[A-Za-z0-9]{6}$`)

type storage interface {
	CreateUser(ctx context.Context, usr *user.User) (int64, error)
	GetUserByID(ctx context.Context, userID int64) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	IsShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	InsertShortenedURL(ctx context.Context, u *models.ShortenedURL) error
	FindUserURLByOriginal(ctx context.Context, ownerID int64, originalURL string) (*models.ShortenedURL, bool, error)
	GetUserURLs(ctx context.Context, ownerID int64) (models.UserURLs, error)
	DeleteUserURL(ctx context.Context, ownerID int64, shortCode string) (bool, error)
	IncrementClickCount(ctx context.Context, shortCode string) (string, bool, error)
	GetNumberOfShortenedURLs(ctx context.Context) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
	BlacklistToken(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) (bool, error)
	IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error)
	Ping(ctx context.Context) error
}

// newTestServer serves the full router over db. A nil db means a fresh in-memory storage.
func newTestServer(db storage) (*httptest.Server, error) {
	if db == nil {
		memory, err := memorystorage.New()
		if err != nil {
			return nil, err
		}
		db = memory
	}

	tokens := auth.New(db, db, []byte(testSigningKey), 5*time.Minute, time.Hour)

	codes, err := service.NewCodeGenerator(100)
	if err != nil {
		return nil, err
	}

	checker, err := ipchecker.New(testTrustedSubnet)
	if err != nil {
		return nil, err
	}

	mux := New(
		service.NewAuthService(db, tokens),
		service.NewShortenerService(db, codes, testShortURLBase),
		tokens,
		checker,
		[]string{testOrigin},
	)

	return httptest.NewServer(mux), nil
}

func setupTest(t *testing.T, db storage) *resty.Client {
	t.Helper()

	server, err := newTestServer(db)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	return resty.New().SetBaseURL(server.URL)
}

func decodeBody(t *testing.T, resp *resty.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &body))

	return body
}

type registeredUser struct {
	ID     int64
	Tokens models.TokenPair
}

func registerAndLogin(t *testing.T, client *resty.Client, email, username string) registeredUser {
	t.Helper()

	resp, err := client.R().
		SetBody(models.RegisterRequest{
			Email:     email,
			Username:  username,
			Password1: "s3cret-pass",
			Password2: "s3cret-pass",
		}).
		Post("/authentication/register/")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode(), resp.String())

	var login models.LoginResponse
	resp, err = client.R().
		SetBody(models.LoginRequest{Email: email, Password: "s3cret-pass"}).
		SetResult(&login).
		Post("/authentication/login/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	return registeredUser{ID: login.User.ID, Tokens: login.User.Tokens}
}

func TestPostAuthenticationRegister(t *testing.T) {
	client := setupTest(t, nil)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			body:       models.RegisterRequest{Email: "a@example.com", Username: "alice", Password1: "password1", Password2: "password1"},
			wantStatus: http.StatusCreated,
			wantBody:   `{"message":"Registration successful."}`,
		},
		{
			name:       "duplicate email",
			body:       models.RegisterRequest{Email: "a@example.com", Username: "alice2", Password1: "password1", Password2: "password1"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"email":["user with this email already exists."]},"message":"Registration failed."}`,
		},
		{
			name:       "passwords differ",
			body:       models.RegisterRequest{Email: "b@example.com", Username: "bob", Password1: "password1", Password2: "password2"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"non_field_errors":["Passwords do not match."]},"message":"Registration failed."}`,
		},
		{
			name:       "short password",
			body:       models.RegisterRequest{Email: "b@example.com", Username: "bob", Password1: "short", Password2: "short"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"non_field_errors":["Password must be at least 8 characters long."]},"message":"Registration failed."}`,
		},
		{
			name:       "taken email reported before password rules",
			body:       models.RegisterRequest{Email: "a@example.com", Username: "carol", Password1: "short", Password2: "short"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"email":["user with this email already exists."]},"message":"Registration failed."}`,
		},
		{
			name:       "username with spaces",
			body:       models.RegisterRequest{Email: "c@example.com", Username: "car ol", Password1: "password1", Password2: "password1"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"username":["Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."]},"message":"Registration failed."}`,
		},
		{
			name:       "empty body",
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
			wantBody: `{"errors":{
				"email":["This field is required."],
				"username":["This field is required."],
				"password1":["This field is required."],
				"password2":["This field is required."]
			},"message":"Registration failed."}`,
		},
		{
			name:       "malformed json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"errors":{"non_field_errors":["JSON parse error."]},"message":"Registration failed."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.R().
				SetHeader("Content-Type", "application/json").
				SetBody(tt.body).
				Post("/authentication/register/")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode())
			assert.JSONEq(t, tt.wantBody, resp.String())
		})
	}
}

func TestPostAuthenticationLogin(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "carol@example.com", "carol")

	t.Run("success", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.LoginRequest{Email: "carol@example.com", Password: "s3cret-pass"}).
			Post("/authentication/login/")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())

		body := decodeBody(t, resp)
		assert.Equal(t, "Login successful.", body["message"])

		usr := body["user"].(map[string]any)
		assert.EqualValues(t, registered.ID, usr["id"])
		assert.Equal(t, "carol@example.com", usr["email"])
		assert.Equal(t, "carol", usr["username"])
		assert.NotContains(t, usr, "password")

		tokens := usr["tokens"].(map[string]any)
		assert.NotEmpty(t, tokens["access"])
		assert.NotEmpty(t, tokens["refresh"])
	})

	t.Run("wrong password", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.LoginRequest{Email: "carol@example.com", Password: "wrong-pass"}).
			Post("/authentication/login/")
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
		assert.JSONEq(t, `{"errors":{"non_field_errors":["Incorrect password."]},"message":"Login failed."}`, resp.String())
	})

	t.Run("unknown email", func(t *testing.T) {
		resp, err := client.R().
			SetBody(models.LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"}).
			Post("/authentication/login/")
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
		assert.JSONEq(t, `{"errors":{"non_field_errors":["Email does not exist."]},"message":"Login failed."}`, resp.String())
	})
}

func TestPostAuthenticationLogout(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "dave@example.com", "dave")

	resp, err := client.R().
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Refresh}).
		Post("/authentication/logout/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.JSONEq(t, `{"detail":"Authentication credentials were not provided."}`, resp.String())

	resp, err = client.R().
		SetAuthToken(registered.Tokens.Access).
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Refresh}).
		Post("/authentication/logout/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusResetContent, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Logout successful."}`, resp.String())

	resp, err = client.R().
		SetAuthToken(registered.Tokens.Access).
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Refresh}).
		Post("/authentication/logout/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.JSONEq(t, `{"error":"An error occurred. Please try again later.","message":"Logout failed."}`, resp.String())

	resp, err = client.R().
		SetAuthToken(registered.Tokens.Access).
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Access}).
		Post("/authentication/logout/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestPostAuthenticationTokenRefresh(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "erin@example.com", "erin")

	resp, err := client.R().
		SetBody(map[string]string{}).
		Post("/authentication/token/refresh/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.JSONEq(t, `{"refresh":["This field is required."]}`, resp.String())

	var rotated models.TokenPair
	resp, err = client.R().
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Refresh}).
		SetResult(&rotated).
		Post("/authentication/token/refresh/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.NotEmpty(t, rotated.Access)
	assert.NotEqual(t, registered.Tokens.Refresh, rotated.Refresh)

	resp, err = client.R().
		SetBody(models.RefreshRequest{Refresh: registered.Tokens.Refresh}).
		Post("/authentication/token/refresh/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.JSONEq(t, `{"detail":"Token is blacklisted","code":"token_not_valid"}`, resp.String())

	resp, err = client.R().
		SetBody(models.RefreshRequest{Refresh: "garbage"}).
		Post("/authentication/token/refresh/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.JSONEq(t, `{"detail":"Token is invalid or expired","code":"token_not_valid"}`, resp.String())

	resp, err = client.R().
		SetAuthToken(rotated.Access).
		Get("/authentication/user-info/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestGetAuthenticationUserinfo(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "frank@example.com", "frank")

	resp, err := client.R().
		SetAuthToken(registered.Tokens.Access).
		Get("/authentication/user-info/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var body models.UserInfoResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, "User retrieval successful.", body.Message)
	assert.Equal(t, user.View{ID: registered.ID, Email: "frank@example.com", Username: "frank"}, body.User)

	resp, err = client.R().
		SetAuthToken(registered.Tokens.Refresh).
		Get("/authentication/user-info/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.JSONEq(t, `{"detail":"Given token not valid for any token type","code":"token_not_valid"}`, resp.String())
}

func TestDeleteAuthenticationDelete(t *testing.T) {
	client := setupTest(t, nil)
	alice := registerAndLogin(t, client, "alice@example.com", "alice")
	bob := registerAndLogin(t, client, "bob@example.com", "bob")

	resp, err := client.R().
		SetAuthToken(alice.Tokens.Access).
		SetPathParam("id", "abc").
		Delete("/authentication/delete/{id}/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp, err = client.R().
		SetAuthToken(alice.Tokens.Access).
		Delete("/authentication/delete/9999/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"error":"User not found","message":"Deletion failed."}`, resp.String())

	// Any authenticated user may delete any other user.
	resp, err = client.R().
		SetAuthToken(alice.Tokens.Access).
		SetPathParam("id", jsonNumber(bob.ID)).
		Delete("/authentication/delete/{id}/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())
	assert.Empty(t, resp.Body())

	resp, err = client.R().
		SetAuthToken(bob.Tokens.Access).
		Get("/authentication/user-info/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestPostShortenerShortenurl(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "gina@example.com", "gina")

	shorten := func(token, target string) *resty.Response {
		request := client.R().SetBody(models.ShortenRequest{OriginalURL: target})
		if token != "" {
			request.SetAuthToken(token)
		}
		resp, err := request.Post("/shortener/shorten-url/")
		require.NoError(t, err)
		return resp
	}

	t.Run("anonymous always creates", func(t *testing.T) {
		first := shorten("", "https://example.com/anon")
		second := shorten("", "https://example.com/anon")

		require.Equal(t, http.StatusCreated, first.StatusCode())
		require.Equal(t, http.StatusCreated, second.StatusCode())

		var a, b models.ShortenResponse
		require.NoError(t, json.Unmarshal(first.Body(), &a))
		require.NoError(t, json.Unmarshal(second.Body(), &b))
		assert.Equal(t, "https://example.com/anon", a.OriginalURL)
		assert.Regexp(t, shortURLPattern, a.ShortenedURL)
		assert.NotEqual(t, a.ShortenedURL, b.ShortenedURL)
	})

	t.Run("owner gets existing link", func(t *testing.T) {
		first := shorten(registered.Tokens.Access, "https://example.com/mine")
		second := shorten(registered.Tokens.Access, "https://example.com/mine")

		assert.Equal(t, http.StatusCreated, first.StatusCode())
		assert.Equal(t, http.StatusOK, second.StatusCode())
		assert.JSONEq(t, first.String(), second.String())
	})

	t.Run("invalid url", func(t *testing.T) {
		resp := shorten("", "not a url")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
		assert.JSONEq(t, `{"original_url":["Enter a valid URL."]}`, resp.String())
	})

	t.Run("missing url", func(t *testing.T) {
		resp := shorten("", "")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
		assert.JSONEq(t, `{"original_url":["This field is required."]}`, resp.String())
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		resp := shorten("not-a-jwt", "https://example.com")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	})
}

func TestGetShortenerUserurls(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "hank@example.com", "hank")

	resp, err := client.R().Get("/shortener/user-urls/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	resp, err = client.R().SetAuthToken(registered.Tokens.Access).Get("/shortener/user-urls/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `[]`, resp.String())

	for _, target := range []string{"https://example.com/1", "https://example.com/2"} {
		resp, err = client.R().
			SetAuthToken(registered.Tokens.Access).
			SetBody(models.ShortenRequest{OriginalURL: target}).
			Post("/shortener/shorten-url/")
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode())
	}

	resp, err = client.R().SetAuthToken(registered.Tokens.Access).Get("/shortener/user-urls/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var items []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &items))
	require.Len(t, items, 2)
	for _, item := range items {
		for _, field := range []string{"id", "original_url", "short_code", "shortened_url", "created_at", "click_count", "user"} {
			assert.Contains(t, item, field)
		}
		assert.EqualValues(t, registered.ID, item["user"])
		assert.EqualValues(t, 0, item["click_count"])
	}
}

func TestDeleteShortenerDeleteurl(t *testing.T) {
	client := setupTest(t, nil)
	owner := registerAndLogin(t, client, "ivy@example.com", "ivy")
	stranger := registerAndLogin(t, client, "jack@example.com", "jack")

	var created models.ShortenResponse
	resp, err := client.R().
		SetAuthToken(owner.Tokens.Access).
		SetBody(models.ShortenRequest{OriginalURL: "https://example.com/owned"}).
		SetResult(&created).
		Post("/shortener/shorten-url/")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	code := created.ShortenedURL[len(testShortURLBase)+1:]

	resp, err = client.R().
		SetAuthToken(stranger.Tokens.Access).
		SetPathParam("code", code).
		Delete("/shortener/delete-url/{code}/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"error":"Shortened URL not found"}`, resp.String())

	resp, err = client.R().
		SetAuthToken(owner.Tokens.Access).
		SetPathParam("code", code).
		Delete("/shortener/delete-url/{code}/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp, err = client.R().
		SetAuthToken(owner.Tokens.Access).
		SetPathParam("code", code).
		Delete("/shortener/delete-url/{code}/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestGetRedirecttofullurl(t *testing.T) {
	client := setupTest(t, nil)
	registered := registerAndLogin(t, client, "kate@example.com", "kate")

	var created models.ShortenResponse
	resp, err := client.R().
		SetAuthToken(registered.Tokens.Access).
		SetBody(models.ShortenRequest{OriginalURL: "https://example.com/target?q=1"}).
		SetResult(&created).
		Post("/shortener/shorten-url/")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	code := created.ShortenedURL[len(testShortURLBase)+1:]

	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for i := 0; i < 2; i++ {
		res, err := noRedirect.Get(client.BaseURL + "/" + code)
		require.NoError(t, err)
		require.NoError(t, res.Body.Close())
		assert.Equal(t, http.StatusFound, res.StatusCode)
		assert.Equal(t, "https://example.com/target?q=1", res.Header.Get("Location"))
	}

	res, err := noRedirect.Get(client.BaseURL + "/zzzzzz")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.JSONEq(t, `{"error":"Shortened URL not found"}`, string(body))

	var items []models.ShortenedURL
	resp, err = client.R().
		SetAuthToken(registered.Tokens.Access).
		SetResult(&items).
		Get("/shortener/user-urls/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Len(t, items, 1)
	assert.EqualValues(t, 2, items[0].ClickCount)
}

func TestGetPing(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client := setupTest(t, nil)

		resp, err := client.R().Get("/ping")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
	})

	t.Run("storage down", func(t *testing.T) {
		db := &mockstorage.StorageMock{}
		db.On("Ping", mock.Anything).Return(errors.New("connection refused"))
		client := setupTest(t, db)

		resp, err := client.R().Get("/ping")
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
		db.AssertExpectations(t)
	})
}

func TestGetApiinternalstats(t *testing.T) {
	db := &mockstorage.StorageMock{
		OnGetNumberOfUsers:         func(context.Context) (int64, error) { return 3, nil },
		OnGetNumberOfShortenedURLs: func(context.Context) (int64, error) { return 7, nil },
	}
	client := setupTest(t, db)

	resp, err := client.R().SetHeader("X-Real-IP", "10.1.1.1").Get("/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"urls":7,"users":3}`, resp.String())

	resp, err = client.R().SetHeader("X-Real-IP", "192.168.1.1").Get("/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestStorageFailuresAnswer500(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("IsShortCodeExists", mock.Anything, mock.Anything).Return(false, errors.New("db down"))
	db.On("GetUserByEmail", mock.Anything, "x@example.com").Return(nil, errors.New("db down"))
	client := setupTest(t, db)

	resp, err := client.R().
		SetBody(models.ShortenRequest{OriginalURL: "https://example.com"}).
		Post("/shortener/shorten-url/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	resp, err = client.R().
		SetBody(models.LoginRequest{Email: "x@example.com", Password: "whatever1"}).
		Post("/authentication/login/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
	assert.Equal(t, "Login failed.", decodeBody(t, resp)["message"])

	db.AssertExpectations(t)
}

func TestShortenGzip(t *testing.T) {
	server, err := newTestServer(nil)
	require.NoError(t, err)
	defer server.Close()

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err = zw.Write([]byte(`{"original_url":"https://ru.wikipedia.org/wiki/%D0%9F%D1%83%D1%88%D0%BA%D0%B0"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	request, err := http.NewRequest(http.MethodPost, server.URL+"/shortener/shorten-url/", &compressed)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	request.Header.Set("Accept-Encoding", "gzip")

	res, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(res.Body)
	require.NoError(t, err)
	var body models.ShortenResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Regexp(t, shortURLPattern, body.ShortenedURL)
}

func TestCORSPreflight(t *testing.T) {
	client := setupTest(t, nil)

	resp, err := client.R().
		SetHeader("Origin", testOrigin).
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		SetHeader("Access-Control-Request-Headers", "authorization,content-type").
		Options("/shortener/shorten-url/")
	require.NoError(t, err)

	assert.Equal(t, testOrigin, resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))

	resp, err = client.R().
		SetHeader("Origin", "http://evil.example").
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		Options("/shortener/shorten-url/")
	require.NoError(t, err)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
