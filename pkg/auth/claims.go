package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a staff JWT.
type AccessTokenPayload struct {
	StaffID uuid.UUID
	Role    enums.StaffRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT carried by back-office and POS
// callers.
type AccessTokenClaims struct {
	StaffID uuid.UUID       `json:"staff_id"`
	Role    enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// IsManager reports whether the caller may run administrative operations.
func (c *AccessTokenClaims) IsManager() bool {
	return c != nil && (c.Role == enums.StaffRoleManager || c.Role == enums.StaffRoleSystem)
}
