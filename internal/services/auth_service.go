package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in session tokens.
const (
	RoleCustomer = "customer"
	RoleShop     = "shop"
	RoleAdmin    = "admin"
)

const tokenIssuer = "storefront"

// ErrTokenRevoked is returned for tokens passed to RevokeToken.
var ErrTokenRevoked = errors.New("token has been revoked")

// AuthService issues and validates session tokens
type AuthService struct {
	jwtSecret     []byte
	jwtExpiration time.Duration

	revoked   map[string]time.Time
	revokedMu sync.Mutex
}

// NewAuthService creates a new auth service
func NewAuthService(jwtSecret string, jwtExpirationSeconds int) *AuthService {
	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		jwtExpiration: time.Duration(jwtExpirationSeconds) * time.Second,
		revoked:       make(map[string]time.Time),
	}
}

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for a user and role
func (s *AuthService) GenerateToken(userID, role string) (string, error) {
	if userID == "" {
		return "", validationError("user id is required")
	}
	switch role {
	case RoleCustomer, RoleShop, RoleAdmin:
	default:
		return "", validationError("unknown role %q", role)
	}

	now := time.Now()
	claims := &JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	if s.isRevoked(tokenString) {
		return nil, ErrTokenRevoked
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user id")
	}
	return claims, nil
}

// ServiceTokenSource returns a func that hands out an admin token for
// service-to-service calls, minting a new one once half its lifetime is gone.
func (s *AuthService) ServiceTokenSource(subject string) func() (string, error) {
	var (
		mu      sync.Mutex
		token   string
		renewAt time.Time
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if token != "" && time.Now().Before(renewAt) {
			return token, nil
		}
		t, err := s.GenerateToken(subject, RoleAdmin)
		if err != nil {
			return "", err
		}
		token, renewAt = t, time.Now().Add(s.jwtExpiration/2)
		return token, nil
	}
}

// RevokeToken rejects a token until it would have expired anyway
func (s *AuthService) RevokeToken(tokenString string) {
	expiry := time.Now().Add(s.jwtExpiration)
	if claims, err := s.ValidateToken(tokenString); err == nil && claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	s.revoked[tokenString] = expiry
}

func (s *AuthService) isRevoked(tokenString string) bool {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()

	expiry, ok := s.revoked[tokenString]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.revoked, tokenString)
		return false
	}
	return true
}
