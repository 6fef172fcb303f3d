package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/usercore/apiserver/config"
)

var (
	// ErrInvalidToken covers a bad signature, a malformed token and a token
	// signed with an unexpected method.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the claim set carried by both token classes. Refresh tokens leave
// Email and Role empty.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies access and refresh tokens, each class with
// its own key and lifetime.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService constructs a TokenService from JWT configuration.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// IssueAccessToken signs {userId, email, role, iat, exp} with the access key.
func (s *TokenService) IssueAccessToken(userID, email, role string) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Role: role}, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs {userId, iat, exp} with the refresh key.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	return s.sign(Claims{UserID: userID}, s.refreshSecret, s.refreshTTL)
}

// VerifyAccess verifies an access token.
func (s *TokenService) VerifyAccess(token string) (Claims, error) {
	return s.Verify(token, s.accessSecret)
}

// VerifyRefresh verifies a refresh token.
func (s *TokenService) VerifyRefresh(token string) (Claims, error) {
	return s.Verify(token, s.refreshSecret)
}

// Verify checks the signature first and the expiry second, returning
// ErrInvalidToken or ErrTokenExpired so callers can tell the two apart.
func (s *TokenService) Verify(tokenString string, secret []byte) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) sign(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
