package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lendgrid/export-profiles/internal/domain"
)

// AuthService signs and validates the bearer tokens that carry the caller's
// organization.
type AuthService struct {
	jwtSecret []byte
	issuer    string
	accessTTL time.Duration
}

// NewAuthService creates a new auth service.
func NewAuthService(jwtSecret, issuer string, accessTTL time.Duration) *AuthService {
	if issuer == "" {
		issuer = "export-profiles"
	}
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub   string `json:"sub"`
	OrgID string `json:"org_id"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs an access token for userID acting within orgID.
func (s *AuthService) IssueAccessToken(userID, orgID string) (string, error) {
	if strings.TrimSpace(orgID) == "" {
		return "", &domain.ErrValidation{Field: "org_id", Message: "required"}
	}
	now := time.Now()
	claims := JWTClaims{
		Sub:   userID,
		OrgID: orgID,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    s.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAccessToken parses an access token and checks that it names an org.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if claims.OrgID == "" {
		return nil, &domain.ErrUnauthorized{Message: "token carries no organization"}
	}
	return claims, nil
}
