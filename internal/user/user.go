// Package user defines the user model and its password hashing.
package user

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by CheckPassword for a wrong password.
var ErrPasswordMismatch = errors.New("password does not match")

// User represents a registered account.
type User struct {
	// ID is the server-generated identifier, zero until the user is stored.
	ID int64

	Email    string
	Username string

	// PasswordHash is the bcrypt hash of the password, never the password itself.
	PasswordHash string
}

// View is the public projection of a User.
type View struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// View returns the fields that may be shown to clients.
func (u *User) View() View {
	return View{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
	}
}

// SetPassword hashes password and stores the hash on the user.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)

	return nil
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}

	return err
}
