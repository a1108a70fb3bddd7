package services

import (
	"context"
	"errors"
	"time"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/pkg/cache"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type Claims struct {
	IdentityID domain.IdentityID `json:"identity_id"`
	Username   string            `json:"username"`
	Admin      bool              `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// tokenCacheTTL bounds how long a validated token is served from cache, so
// revocation by expiry is only delayed by this window.
const tokenCacheTTL = time.Minute

type identityService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	admins         map[domain.IdentityID]struct{}
	tokenCache     *cache.CacheWithFallback
}

// NewIdentityService builds the JWT-backed identity provider. admins lists
// identity IDs granted the platform admin flag at issue time.
func NewIdentityService(jwtSecret string, accessTokenTTL time.Duration, admins []string) ports.IdentityProvider {
	adminSet := make(map[domain.IdentityID]struct{}, len(admins))
	for _, id := range admins {
		adminSet[domain.IdentityID(id)] = struct{}{}
	}
	return &identityService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		admins:         adminSet,
		tokenCache:     cache.NewCacheWithFallback(tokenCacheTTL),
	}
}

// Authenticate exchanges a bearer token for an identity. Hot tokens are
// served from a short-lived cache to skip repeated signature checks.
func (s *identityService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	value, err := s.tokenCache.GetOrSet(ctx, token, func(ctx context.Context) (interface{}, error) {
		claims, err := s.validateToken(token)
		if err != nil {
			return nil, err
		}
		identity := &domain.Identity{
			ID:       claims.IdentityID,
			Username: claims.Username,
			Admin:    claims.Admin,
		}
		if _, ok := s.admins[claims.IdentityID]; ok {
			identity.Admin = true
		}
		return identity, nil
	}, tokenCacheTTL)
	if err != nil {
		return nil, err
	}

	identity, ok := value.(*domain.Identity)
	if !ok {
		return nil, ErrInvalidToken
	}
	return identity, nil
}

// Issue signs a token for the identity. Used by the token endpoint and by
// bootstrap tooling.
func (s *identityService) Issue(identity domain.IdentityID, username string) (string, error) {
	_, admin := s.admins[identity]
	claims := &Claims{
		IdentityID: identity,
		Username:   username,
		Admin:      admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *identityService) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.IdentityID == "" {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}
