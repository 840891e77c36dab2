// Package auth mints and verifies the HS256 access tokens that carry a
// caller's identity, role and sub-admin access level.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")

	signingMethod = jwt.SigningMethodHS256
)

// AccessTokenPayload is what the identity side knows when it issues a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	Access enums.AccessLevel
	JTI    string
}

type AccessTokenClaims struct {
	UserID uuid.UUID         `json:"user_id"`
	Role   enums.Role        `json:"role"`
	Access enums.AccessLevel `json:"access,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks; jwt/v5 calls it for any
// claims type that implements it.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token is missing user_id")
	}
	return checkRole(c.Role, c.Access)
}

// checkRole requires an access level for sub-admins and forbids it for
// everyone else.
func checkRole(role enums.Role, access enums.AccessLevel) error {
	switch {
	case !role.IsValid():
		return fmt.Errorf("invalid role %q", role)
	case role == enums.RoleSubAdmin && !access.IsValid():
		return fmt.Errorf("sub_admin requires access read_write or read_only, got %q", access)
	case role != enums.RoleSubAdmin && access != "":
		return errors.New("access level is only valid for sub_admin")
	}
	return nil
}

// MintAccessToken signs payload for cfg.ExpirationMinutes from now. A blank
// JTI gets a fresh uuid so every token can be tracked as a session.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if err := checkRole(payload.Role, payload.Access); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		Access: payload.Access,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry before returning the
// typed claims. Tokens without exp are rejected.
func ParseAccessToken(cfg config.JWTConfig, token string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
