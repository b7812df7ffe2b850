package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

var (
	ErrMissingUser  = errors.New("token missing user_id")
	ErrVendorScope  = errors.New("vendor token must name its vendor")
	ErrInvalidRole  = errors.New("token carries an unknown role")
	ErrSubjectClash = errors.New("token subject does not match user_id")
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	VendorID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the JWT presented by clients. Tokens are minted by the
// identity service; this service only verifies them.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	Role     enums.UserRole `json:"role"`
	VendorID *uuid.UUID     `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt calls it through
// jwt.ClaimsValidator.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return ErrMissingUser
	case !c.Role.IsValid():
		return fmt.Errorf("%w: %q", ErrInvalidRole, c.Role)
	case c.Role == enums.UserRoleVendor && (c.VendorID == nil || *c.VendorID == uuid.Nil):
		return ErrVendorScope
	case c.Subject != "" && c.Subject != c.UserID.String():
		return ErrSubjectClash
	}
	return nil
}
