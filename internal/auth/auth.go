package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidProxy    = fmt.Errorf("%w: invalid proxy token", ErrUnauthorized)
	ErrMissingBearer   = fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrMissingIdentity = fmt.Errorf("%w: caller identity is missing", ErrUnauthorized)
)

// Credentials are the raw auth headers of one request, transport-agnostic.
type Credentials struct {
	Authorization string
	ProxyToken    string
	UserID        string
}

type Authenticator struct {
	proxyToken string
	jwtSecret  string
}

// New: пустой proxyToken отключает проверку прокси, при пустом jwtSecret доверяем X-User-Id
func New(proxyToken, jwtSecret string) *Authenticator {
	return &Authenticator{
		proxyToken: proxyToken,
		jwtSecret:  jwtSecret,
	}
}

func (c Credentials) Bearer() string {
	h := strings.TrimSpace(c.Authorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// CheckProxy verifies the shared gateway token from X-Proxy-Token, falling back to the bearer.
func (a *Authenticator) CheckProxy(creds Credentials) error {
	if a.proxyToken == "" {
		return nil
	}
	token := creds.ProxyToken
	if token == "" {
		token = creds.Bearer()
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.proxyToken)) != 1 {
		return ErrInvalidProxy
	}
	return nil
}

// Identify resolves the caller id: the JWT subject when a secret is configured,
// otherwise the X-User-Id header set by the authenticating edge.
func (a *Authenticator) Identify(creds Credentials) (string, error) {
	if a.jwtSecret == "" {
		if id := strings.TrimSpace(creds.UserID); id != "" {
			return id, nil
		}
		return "", ErrMissingIdentity
	}

	tokenStr := creds.Bearer()
	if tokenStr == "" {
		return "", ErrMissingBearer
	}
	claims, err := a.parse(tokenStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	for _, key := range []string{"sub", "user_id"} {
		if id := claimString(claims[key]); id != "" {
			return id, nil
		}
	}
	return "", ErrMissingIdentity
}

func (a *Authenticator) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

func claimString(v any) string {
	switch c := v.(type) {
	case string:
		return strings.TrimSpace(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	}
	return ""
}
