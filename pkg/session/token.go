package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// Claims is the part of the backend token the dashboard reads. The signature
// is never checked here: the dashboard cannot verify it and does not need to.
// Token expiry is read only to avoid rendering authenticated views with a
// token that is about to be refused; the backend remains the authority.
type Claims struct {
	jwt.RegisteredClaims
	Role  models.Role `json:"role"`
	Email string      `json:"email,omitempty"`
}

var (
	errTokenEmpty     = errors.New("token empty")
	errTokenNoExpiry  = errors.New("token carries no expiry")
	errTokenMalformed = errors.New("token malformed")
)

var unverifiedParser = jwt.NewParser()

// DecodeToken reads the claims without verifying the signature.
func DecodeToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errTokenEmpty
	}
	claims := &Claims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errTokenMalformed, err)
	}
	return claims, nil
}

// TokenExpiry returns the exp claim. Tokens without one are treated as
// unusable.
func TokenExpiry(token string) (time.Time, error) {
	claims, err := DecodeToken(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errTokenNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// IsTokenValid reports whether the token decodes and has not expired at now.
func IsTokenValid(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return now.Before(exp)
}

// RoleFromToken reads the role claim with no network call, for role gating
// before the user profile is available.
func RoleFromToken(token string) (models.Role, bool) {
	claims, err := DecodeToken(token)
	if err != nil || claims.Role == "" {
		return "", false
	}
	return claims.Role, true
}
