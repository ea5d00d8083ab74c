package auth

import "github.com/google/uuid"

// TokenService validates bearer tokens issued by the identity service.
type TokenService interface {
	GenerateToken(userID uuid.UUID, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

var _ TokenService = (*JWTService)(nil)
