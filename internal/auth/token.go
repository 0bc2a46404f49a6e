package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is set on every token and required on verification.
const Issuer = "wemogw"

// DefaultTokenTTL applies when a non-positive TTL is requested.
const DefaultTokenTTL = time.Hour

// Role says what a token may do on the admin API.
type Role string

const (
	// RoleViewer may read status, devices, the journal and the event stream.
	RoleViewer Role = "viewer"

	// RoleAdmin may additionally trigger device discovery.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleAdmin
}

// Allows reports whether r meets the required role.
func (r Role) Allows(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

var (
	// ErrTokenInvalid is returned for a token that fails signature,
	// expiry, issuer or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrInvalidSubject is returned when issuing a token without a subject.
	ErrInvalidSubject = errors.New("token subject is required")

	// ErrInvalidRole is returned when issuing a token with an unknown role.
	ErrInvalidRole = errors.New("invalid role")
)

// Claims are the JWT claims carried by an admin API token.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateToken creates a signed token for subject.
//
// Parameters:
//   - subject: Who the token is for (an operator or a service name)
//   - role: RoleViewer or RoleAdmin
//   - secret: HMAC signing secret
//   - ttl: Lifetime; DefaultTokenTTL if not positive
//
// Returns:
//   - string: Compact signed JWT
//   - error: If the subject or role is invalid or signing fails
func GenerateToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrInvalidSubject
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates tokenString and returns its claims.
// It checks the signature, algorithm, expiry, issuer, subject and role.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
