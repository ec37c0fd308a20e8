package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"

	issuer = "predictiond"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims identifies the caller. Subject carries the caller's address.
type Claims struct {
	Role string `json:"role"`

	jwt.RegisteredClaims
}

// Address returns the caller address named by the subject claim.
func (c Claims) Address() (common.Address, error) {
	if !common.IsHexAddress(c.Subject) {
		return common.Address{}, ErrInvalidToken
	}
	return common.HexToAddress(c.Subject), nil
}

func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type JWT struct {
	Secret   []byte
	TokenTTL time.Duration
}

// Issue signs a token for addr with the given role.
func (j JWT) Issue(addr common.Address, role string) (string, time.Time, error) {
	return j.Sign(Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: addr.Hex()},
	})
}

func (j JWT) Sign(claims Claims) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.NotBefore == nil {
		claims.NotBefore = jwt.NewNumericDate(now.Add(-5 * time.Second))
	}
	if claims.ExpiresAt == nil {
		expiresAt = now.Add(j.TokenTTL)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	} else {
		expiresAt = claims.ExpiresAt.Time
	}
	if claims.Issuer == "" {
		claims.Issuer = issuer
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expiresAt, nil
}

func (j JWT) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.Secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if _, err := c.Address(); err != nil {
		return Claims{}, err
	}
	return *c, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
