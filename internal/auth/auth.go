// Package auth decodes bearer tokens into the acting user and checks
// module permissions.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextKey = "auth.claims"

// Permission is one granted permission, titled "<ACTION> <MODULE>" or
// "<ACTION> OWN <MODULE>".
type Permission struct {
	PermissionID int64  `json:"permissionId"`
	Title        string `json:"title"`
}

// Claims is the payload of an access token.
type Claims struct {
	UserID      int64        `json:"user_ID"`
	Permissions []Permission `json:"permissions,omitempty"`
	Roles       string       `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 tokens. Safe for concurrent use.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Issue signs claims valid for ttl.
func (s *TokenService) Issue(c Claims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	c.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Validate parses a token and returns its claims.
func (s *TokenService) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token carries no user")
	}
	return claims, nil
}

// Middleware attaches the token claims to the request context. Without a
// token the request is rejected when required is set, and passed through
// anonymously otherwise. A malformed token is always rejected.
func Middleware(s *TokenService, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
			return
		}
		claims, err := s.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Error parsing token"})
			return
		}
		c.Set(contextKey, claims)
		c.Next()
	}
}

// RequireForMutations is Middleware that only insists on a token for
// non-GET requests.
func RequireForMutations(s *TokenService) gin.HandlerFunc {
	strict := Middleware(s, true)
	lax := Middleware(s, false)
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			lax(c)
		default:
			strict(c)
		}
	}
}

func bearer(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// FromContext returns the claims attached by Middleware.
func FromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok && claims != nil
}

// Access is the outcome of a permission check.
type Access int

const (
	Denied Access = iota
	Granted
	GrantedOwn
)

// Check resolves the access of claims to action on moduleName. With
// usePermission off everything is granted. Create never falls back to the
// OWN variant.
func Check(usePermission bool, moduleName, action string, claims *Claims) Access {
	if !usePermission {
		return Granted
	}
	if claims == nil {
		return Denied
	}
	if HasPermission(claims, moduleName, action) {
		return Granted
	}
	if strings.EqualFold(action, "create") {
		return Denied
	}
	if HasPermission(claims, moduleName, action+" own") {
		return GrantedOwn
	}
	return Denied
}

// HasPermission reports whether claims carry "<ACTION> <MODULE>".
func HasPermission(claims *Claims, moduleName, action string) bool {
	want := strings.ToUpper(action) + " " + strings.ToUpper(moduleName)
	for _, p := range claims.Permissions {
		if p.Title == want {
			return true
		}
	}
	return false
}
