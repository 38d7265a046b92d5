// Package token issues and verifies the platform's signed access and
// refresh credentials. Tokens are stateless: whether the session they
// reference is still alive is the orchestrator's concern, not this
// package's.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer and audience tags carried by every token the platform signs.
	Issuer          = "zenith-auth"
	AccessAudience  = "zenith-users"
	RefreshAudience = "zenith-refresh"

	refreshType = "refresh"

	// AccessTTL applies to ordinary logins; RememberMeTTL when the user
	// asked to stay signed in. RefreshTTL is always the long window.
	AccessTTL     = 24 * time.Hour
	RememberMeTTL = 7 * 24 * time.Hour
	RefreshTTL    = 7 * 24 * time.Hour
)

var (
	// ErrExpired is returned for structurally valid tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned before any cryptographic work for inputs
	// that cannot be a token.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature covers bad signatures, wrong issuer/audience and every
	// other verification failure.
	ErrSignature = errors.New("token signature invalid")
)

// Claims is the platform claim set embedded in both token kinds. Type is
// empty on access tokens and "refresh" on refresh tokens.
type Claims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid"`
	Role      string `json:"role,omitempty"`
	Type      string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the signing material. AccessSecret and RefreshSecret must be
// distinct so a refresh token can never verify on the access path.
// PreviousAccessSecret and PreviousRefreshSecret, when set, stay valid for
// verification during key rotation; new tokens are always signed with the
// current secrets.
type Config struct {
	AccessSecret          []byte
	RefreshSecret         []byte
	PreviousAccessSecret  []byte
	PreviousRefreshSecret []byte
}

// Service signs and verifies tokens. Safe for concurrent use.
type Service struct {
	cfg Config
}

// NewService validates the key material.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token service requires access and refresh secrets")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &Service{cfg: cfg}, nil
}

// IssueAccess signs an access token for the given identity. rememberMe
// extends the expiry from 24 hours to 7 days.
func (s *Service) IssueAccess(accountID, sessionID, role string, rememberMe bool) (string, error) {
	ttl := AccessTTL
	if rememberMe {
		ttl = RememberMeTTL
	}
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{AccessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.AccessSecret)
}

// IssueRefresh signs a refresh token bound to the session. It carries the
// refresh type marker and the refresh audience so it is rejected on the
// access verification path even though the signature scheme is shared.
func (s *Service) IssueRefresh(accountID, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Type:      refreshType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{RefreshAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.RefreshSecret)
}

// Verify validates an access token and returns its claims. Refresh tokens
// fail here: they are signed with a different secret and audience.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr, AccessAudience, s.cfg.AccessSecret, s.cfg.PreviousAccessSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type == refreshType {
		return nil, ErrSignature
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token. A signature-valid token without
// the refresh type marker is rejected to prevent access/refresh confusion.
func (s *Service) VerifyRefresh(tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr, RefreshAudience, s.cfg.RefreshSecret, s.cfg.PreviousRefreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type != refreshType {
		return nil, ErrSignature
	}
	return claims, nil
}

func (s *Service) parse(tokenStr, audience string, secret, previous []byte) (*Claims, error) {
	if err := precheck(tokenStr); err != nil {
		return nil, err
	}

	claims, err := parseWithKey(tokenStr, audience, secret)
	if err != nil && errors.Is(err, ErrSignature) && len(previous) > 0 {
		claims, err = parseWithKey(tokenStr, audience, previous)
	}
	return claims, err
}

func parseWithKey(tokenStr, audience string, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, ErrSignature
		}
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrSignature
	}
	return claims, nil
}

// precheck rejects obvious non-tokens before any signature work: anything
// that is not three dot-separated segments, and the placeholder sentinels
// browser clients have been observed to send.
func precheck(tokenStr string) error {
	switch tokenStr {
	case "", "null", "undefined":
		return ErrMalformed
	}
	if strings.Count(tokenStr, ".") != 2 {
		return ErrMalformed
	}
	return nil
}
