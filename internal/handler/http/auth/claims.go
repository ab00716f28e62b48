package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HS256 secret (256 bits).
const MinSecretLength = 32

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
)

// Claims identify the caller. Subject is the user id for farm users and a
// free-form service name for backend callers.
type Claims struct {
	Subject string
	Role    string
	FarmID  int64
}

// UserID parses Subject as a numeric user id; 0 when it is not one.
func (c Claims) UserID() int64 {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

type tokenClaims struct {
	Role   string `json:"role"`
	FarmID int64  `json:"farm_id,omitempty"`
	jwt.RegisteredClaims
}

// ValidateSecret rejects short secrets and ones made of a single repeated
// character.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength || strings.Count(secret, secret[:1]) == len(secret) {
		return ErrWeakSecret
	}
	return nil
}

// IssueToken signs c with HS256. notifyctl uses it to mint development
// tokens; production tokens come from the farm application.
func IssueToken(secret []byte, c Claims, ttl time.Duration, now time.Time) (string, error) {
	if c.Subject == "" {
		return "", errors.New("subject is required")
	}
	if _, ok := RolePermissions[c.Role]; !ok {
		return "", fmt.Errorf("unknown role %q", c.Role)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role:   c.Role,
		FarmID: c.FarmID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(secret)
}

// ParseToken verifies an HS256 token and requires exp, sub and role.
func ParseToken(secret []byte, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrMissingToken
	}
	var tc tokenClaims
	tok, err := jwt.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" || tc.Role == "" {
		return Claims{}, fmt.Errorf("%w: sub and role are required", ErrInvalidToken)
	}
	return Claims{Subject: tc.Subject, Role: tc.Role, FarmID: tc.FarmID}, nil
}
