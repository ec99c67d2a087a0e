package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
)

const (
	stateIssuer = "pewcal"
	stateTTL    = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid oauth state")

type stateClaims struct {
	Redirect string `json:"redirect,omitempty"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// StateSigner issues the OAuth state parameter as a short-lived HS256 token.
type StateSigner struct {
	key []byte
	now func() time.Time
}

func NewStateSigner(secret string) (*StateSigner, error) {
	key, err := deriveKey(secret, "pewcal oauth state", 32)
	if err != nil {
		return nil, err
	}
	return &StateSigner{key: key, now: time.Now}, nil
}

// NewNonce returns a random value that ties a state to the browser holding
// it in the oauth_nonce cookie.
func NewNonce() (string, error) {
	b := securecookie.GenerateRandomKey(24)
	if b == nil {
		return "", errors.New("generate oauth nonce")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue signs a state carrying redirect and nonce. Unsafe redirects are dropped.
func (s *StateSigner) Issue(redirect, nonce string) (string, error) {
	if nonce == "" {
		return "", errors.New("sign state: empty nonce")
	}
	now := s.now()
	claims := stateClaims{
		Redirect: SafeRedirect(redirect),
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks the state against the nonce from the browser's cookie and
// returns its redirect path, which may be empty.
func (s *StateSigner) Verify(state, nonce string) (string, error) {
	if state == "" || nonce == "" {
		return "", ErrInvalidState
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(nonce)) != 1 {
		return "", fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}
	return SafeRedirect(claims.Redirect), nil
}

// SafeRedirect returns path when it is a same-site absolute path and "" otherwise.
func SafeRedirect(path string) string {
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, `\`) {
		return ""
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return path
}
