package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/database"
)

// UserKey is the gin context key of the authenticated *models.Identity.
const UserKey = "user"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims are the claims of a chartwise bearer token. The subject is the user ID.
type Claims struct {
	Role database.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider issues and verifies HS256 bearer tokens and guards routes with them.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTProvider creates a provider signing with secret. Tokens live for ttl.
func NewJWTProvider(secret string, ttl time.Duration) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token for the user.
func (p *JWTProvider) Issue(userID uint, role database.Role) (string, error) {
	now := p.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry of a token and returns the identity it carries.
func (p *JWTProvider) Verify(tokenString string) (*models.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 0)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: bad role %q", ErrInvalidToken, claims.Role)
	}
	return &models.Identity{ID: uint(id), Role: claims.Role}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// RequireAuth rejects requests without a valid bearer token with 401
// and stores the caller's identity in the context.
func (p *JWTProvider) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		identity, err := p.Verify(token)
		if err != nil {
			log.Debug("rejected bearer token", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Error()})
			return
		}

		c.Set(UserKey, identity)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth. It rejects non-admins with 403.
func (p *JWTProvider) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := c.Get(UserKey)
		user, _ := identity.(*models.Identity)
		if !ok || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) *models.Identity {
	return c.MustGet(UserKey).(*models.Identity)
}
