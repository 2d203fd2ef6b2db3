package dashboard

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenSubject is the subject of dashboard tokens.
const tokenSubject = "dashboard"

var (
	// ErrBadCredentials is returned when the login password is wrong.
	ErrBadCredentials = errors.New("invalid credentials")

	// ErrNoToken is returned when a request carries no token.
	ErrNoToken = errors.New("missing token")
)

// Auth issues and verifies dashboard tokens.
type Auth struct {
	secret   []byte
	password string
	ttl      time.Duration
	now      func() time.Time
}

// NewAuth creates an authenticator. Tokens are HS256 signed with secret.
func NewAuth(secret []byte, password string, ttl time.Duration) *Auth {
	return &Auth{
		secret:   secret,
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Login checks the password and returns a signed token and its expiry.
func (a *Auth) Login(password string) (string, time.Time, error) {
	if a.password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", time.Time{}, ErrBadCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates a token.
func (a *Auth) Verify(raw string) error {
	if raw == "" {
		return ErrNoToken
	}

	claims := new(jwt.RegisteredClaims)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(tokenSubject),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("error verifying token: %w", err)
	}
	return nil
}

// tokenFromRequest reads the bearer token, or the token query parameter used by sockets.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
