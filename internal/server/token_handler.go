package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-checkout/internal/server/middleware"
)

type TokenHandler struct {
	authz        *middleware.Authz
	clientID     string
	clientSecret string
	ttl          time.Duration
}

func NewTokenHandler(authz *middleware.Authz, clientID, clientSecret string, ttl time.Duration) *TokenHandler {
	return &TokenHandler{authz: authz, clientID: clientID, clientSecret: clientSecret, ttl: ttl}
}

type tokenReq struct {
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`
}

// IssueToken handles POST /api/token with operator client credentials,
// form or JSON encoded.
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req tokenReq
	_ = c.ShouldBind(&req)
	if req.ClientID == "" || req.ClientSecret == "" || h.clientSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.ClientID), []byte(h.clientID)) != 1 ||
		subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(h.clientSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid client"})
		return
	}

	signed, err := h.authz.IssueToken(req.ClientID, middleware.OperatorPerms, h.ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int(h.ttl.Seconds()),
	})
}
