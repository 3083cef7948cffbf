package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential errors
var (
	ErrNoCredential = errors.New("no credential")
	ErrExpiredToken = errors.New("token expired")
)

// Credentials holds the bearer token issued by the marketplace backend.
// Session issuance itself is out of scope; the daemon only consumes the
// token and refuses authenticated calls once it has expired.
type Credentials struct {
	Token string `json:"token"`

	path string
}

// Load reads credentials from the session's credential file.
// A missing file yields ErrNoCredential.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if c.Token == "" {
		return nil, ErrNoCredential
	}
	c.path = path
	return &c, nil
}

// Save writes credentials to the given path with 0600 permissions.
func Save(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Bearer returns the token for an Authorization header, or ErrExpiredToken
// if the embedded expiry claim has passed. The signature is not verified
// here: the backend is the verifier, the daemon only avoids sending calls
// that are guaranteed to be rejected.
func (c *Credentials) Bearer() (string, error) {
	if c == nil || c.Token == "" {
		return "", ErrNoCredential
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		// Opaque (non-JWT) tokens are passed through as-is.
		return c.Token, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return c.Token, nil
	}
	if exp.Before(time.Now()) {
		return "", ErrExpiredToken
	}
	return c.Token, nil
}

// Subject returns the "sub" claim of the token, or "" for opaque tokens.
func (c *Credentials) Subject() string {
	if c == nil || c.Token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
