package jwttoken

import (
	"taxfiling/internal/platform/middleware"
)

// MiddlewareAdapter adapts JWTService to the middleware.JWTValidator
// interface.
type MiddlewareAdapter struct {
	service *JWTService
}

// NewMiddlewareAdapter wraps a JWTService for use in the auth middleware.
func NewMiddlewareAdapter(service *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		UserID: claims.Subject,
		Role:   claims.Role,
	}, nil
}
