package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/shortlink/internal/models"
)

func ExampleRouter_GetPing() {
	server, err := newTestServer(nil)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	resp, err := http.Get(server.URL + "/ping")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println("Status Code:", resp.StatusCode)

	// Output:
	// Status Code: 200
}

func ExampleRouter_PostAuthenticationRegister() {
	server, err := newTestServer(nil)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	body, err := json.Marshal(models.RegisterRequest{
		Email:     "user@example.com",
		Username:  "user",
		Password1: "password123",
		Password2: "password123",
	})
	if err != nil {
		panic(err)
	}

	resp, err := http.Post(server.URL+"/authentication/register/", "application/json", bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var result models.MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	fmt.Println("Message:", result.Message)

	// Output:
	// Status Code: 201
	// Message: Registration successful.
}

func ExampleRouter_GetRedirecttofullurl() {
	server, err := newTestServer(nil)
	if err != nil {
		panic(err)
	}
	defer server.Close()

	body, err := json.Marshal(models.ShortenRequest{OriginalURL: "https://example.com"})
	if err != nil {
		panic(err)
	}

	resp, err := http.Post(server.URL+"/shortener/shorten-url/", "application/json", bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	var shortened models.ShortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&shortened); err != nil {
		panic(err)
	}
	fmt.Println("Shorten Status Code:", resp.StatusCode)

	code := strings.TrimPrefix(shortened.ShortenedURL, testShortURLBase+"/")

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	redirect, err := client.Get(server.URL + "/" + code)
	if err != nil {
		panic(err)
	}
	defer redirect.Body.Close()

	fmt.Println("Redirect Status Code:", redirect.StatusCode)
	fmt.Println("Location:", redirect.Header.Get("Location"))

	// Output:
	// Shorten Status Code: 201
	// Redirect Status Code: 302
	// Location: https://example.com
}
