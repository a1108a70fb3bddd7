package http

import (
	"net/http"
	"strings"

	"parley/internal/core/domain"
	"parley/internal/core/ports"
	"parley/internal/infrastructure/middleware"
	"parley/pkg/config"
	"parley/pkg/errors"
	"parley/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthHandler exposes the token endpoint. Identities are not registered
// accounts: the platform trusts the deployment boundary and mints a signed
// token for whatever identity the caller claims, the way a bouncer or SASL
// relay would expect.
type AuthHandler struct {
	identity ports.IdentityProvider
	cfg      *config.Config
}

func NewAuthHandler(identity ports.IdentityProvider, cfg *config.Config) *AuthHandler {
	return &AuthHandler{identity: identity, cfg: cfg}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine, limit gin.HandlerFunc, auth gin.HandlerFunc) {
	api := router.Group("/api/v1/auth")
	api.Use(limit)
	{
		api.POST("/token", h.IssueToken)
		api.GET("/whoami", auth, h.WhoAmI)
	}
}

type TokenRequest struct {
	Identity string `json:"identity" binding:"max=128"`
	Username string `json:"username" binding:"required,min=2,max=32"`
}

type TokenResponse struct {
	Token      string `json:"token"`
	Identity   string `json:"identity"`
	Username   string `json:"username"`
	ExpiresInS int64  `json:"expires_in_s"`
}

// IssueToken mints an access token. Identity defaults to a fresh UUID when
// the caller does not supply one.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validation.ValidateNickname(req.Username); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		identity = uuid.NewString()
	}

	token, err := h.identity.Issue(domain.IdentityID(identity), req.Username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:      token,
		Identity:   identity,
		Username:   req.Username,
		ExpiresInS: int64(h.cfg.Auth.AccessTokenTTL.Seconds()),
	})
}

// WhoAmI echoes the identity behind the presented token.
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	who, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": who.ID,
		"username": who.Username,
		"admin":    who.Admin,
	})
}
