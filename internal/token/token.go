// internal/token/token.go
//
// Signed credential claims.
//
// Context
// -------
// Authenticated requests carry an HS256 JWT, either as a Bearer header
// (API callers) or in the `wos_session` cookie (browsers).  The payload
// holds three things the resolver needs:
//
//	sub        – stable principal identifier.
//	wos_tid    – the selected tenant, stamped AFTER tenant selection.
//	             A token without it is authenticated but tenant-less.
//	wos_epoch  – the principal's token epoch at mint time.  Logging out
//	             anywhere bumps the epoch in the users row, so every
//	             other outstanding token dies on its next resolution.
//
// The tenant identifier is read from the credential only, never from the
// URL or request body—URL-supplied slugs belong to the unauthenticated
// public path, a distinct, lower-trust resolution.
//
// Notes
// -----
// • Claims validation mirrors the strictness of issuer, expiry, and
//   clock-skew checks; a token that fails any of them is simply invalid,
//   with no distinction leaked to the caller.
// • Oxford commas, two spaces after periods.
package token

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the browser carriage for the signed credential.
const CookieName = "wos_session"

// clockSkew tolerated when validating issued-at.
const clockSkew = 5 * time.Second

// ErrInvalid indicates the token failed validation for any reason.
var ErrInvalid = errors.New("invalid token")

// Claims is the application payload.
type Claims struct {
	TenantID int64 `json:"wos_tid,omitempty"`
	Epoch    int64 `json:"wos_epoch"`
	jwt.RegisteredClaims
}

// UserID parses the subject back into the principal identifier.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalid
	}
	return id, nil
}

// HasTenant reports whether a tenant has been stamped.
func (c *Claims) HasTenant() bool { return c.TenantID > 0 }

// Service mints and validates credentials.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewService builds a Service.  The secret must be at least 32 bytes;
// short HMAC keys are brute-forceable offline.
func NewService(secret, issuer string, ttl time.Duration) (*Service, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if issuer == "" || ttl <= 0 {
		return nil, errors.New("token issuer and ttl are required")
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Mint signs a credential for userID.  tenantID == 0 mints a tenant-less
// token (post-login, pre-selection); epoch must be the user's current
// token epoch.
func (s *Service) Mint(userID, tenantID, epoch int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("userID is required")
	}

	now := time.Now().UTC()
	claims := Claims{
		TenantID: tenantID,
		Epoch:    epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies the signature and required claims.
func (s *Service) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if err := s.validate(claims); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (s *Service) validate(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return errors.New("unexpected issuer")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	return nil
}

// FromRequest extracts and validates the credential from the Bearer
// header, falling back to the session cookie.
func (s *Service) FromRequest(r *http.Request) (*Claims, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, raw, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return nil, ErrInvalid
		}
		return s.Parse(raw)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return s.Parse(c.Value)
	}
	return nil, ErrInvalid
}

// Cookie wraps a signed credential for the browser carriage.
func (s *Service) Cookie(signed string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.ttl),
	}
}

// ClearCookie expires the session cookie.
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
}
