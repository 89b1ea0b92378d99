package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	PermOrdersRead  = "orders.read"
	PermOrdersWrite = "orders.write"
)

// OperatorPerms is what an operator token carries.
var OperatorPerms = []string{PermOrdersRead, PermOrdersWrite}

type Authz struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewAuthz(secret, issuer, audience string) *Authz {
	return &Authz{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
}

// IssueToken signs an operator token for clientID valid for ttl.
func (a *Authz) IssueToken(clientID string, perms []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss":      a.issuer,
		"aud":      a.audience,
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"clientID": clientID,
		"perms":    perms,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Require aborts unless the request carries a valid token with every one
// of the required permissions.
func (a *Authz) Require(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Authorize(c, requiredPerms...) {
			c.Next()
		}
	}
}

// Authorize checks the bearer token and writes the 401/403 answer itself
// when it fails. Handlers that only sometimes need a token call it directly.
func (a *Authz) Authorize(c *gin.Context, requiredPerms ...string) bool {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		unauth(c, "invalid_request", "missing bearer token")
		return false
	}

	raw := strings.TrimPrefix(auth, "Bearer ")
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		unauth(c, "invalid_token", "invalid jwt")
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		unauth(c, "invalid_token", "claims parsing error")
		return false
	}
	perms := extractPerms(claims)
	for _, p := range requiredPerms {
		if !slices.Contains(perms, p) {
			forbidden(c, "insufficient_scope", "missing required permissions")
			return false
		}
	}
	return true
}

func extractPerms(claims jwt.MapClaims) []string {
	var out []string
	if arr, ok := claims["perms"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": code, "error_description": desc})
}

func forbidden(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": code, "error_description": desc})
}
