package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loopcraft/iamd/internal/config"
	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/http/middleware"
	"github.com/loopcraft/iamd/internal/identity"
	"github.com/loopcraft/iamd/internal/mfa"
	"github.com/loopcraft/iamd/internal/service"
)

// AuthHandler serves the authentication surface.
type AuthHandler struct {
	Auth *service.AuthService
	MFA  *mfa.Service
	cfg  config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, factors *mfa.Service, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, MFA: factors, cfg: cfg}
}

// Register creates a local-credential account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	session, err := h.Auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session.Token)
	c.JSON(http.StatusCreated, session)
}

// Login authenticates with email and password. Accounts with an active
// second factor get a challenge response instead of a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	session, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrSecondFactorRequired) {
			c.JSON(http.StatusOK, gin.H{"mfa_required": true})
			return
		}
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, session)
}

// LoginMFA completes an MFA-gated login.
func (h *AuthHandler) LoginMFA(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Code     string `json:"code" binding:"required"`
		Remember bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	session, err := h.Auth.VerifySecondFactor(c.Request.Context(), req.Email, req.Password, req.Code, req.Remember)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, session)
}

// SocialCallback signs in a profile asserted by a social provider. The
// gateway terminating the provider handshake posts the verified profile here.
func (h *AuthHandler) SocialCallback(c *gin.Context) {
	var req struct {
		Provider   string `json:"provider" binding:"required"`
		ExternalID string `json:"external_id" binding:"required"`
		Email      string `json:"email" binding:"required"`
		Name       string `json:"name"`
		AvatarURL  string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	session, err := h.Auth.SocialCallback(c.Request.Context(), identity.Profile{
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		Email:      req.Email,
		Name:       req.Name,
		AvatarURL:  req.AvatarURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, session)
}

// SSOExchange swaps an enterprise SSO assertion for a session.
func (h *AuthHandler) SSOExchange(c *gin.Context) {
	var req struct {
		Assertion string `json:"assertion" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	session, err := h.Auth.SSOExchange(c.Request.Context(), req.Assertion)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, session)
}

// PasswordForgot starts the reset flow. The response is the same whether or
// not the address has an account.
func (h *AuthHandler) PasswordForgot(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	if err := h.Auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"otp_issued": true})
}

// PasswordVerifyOTP checks the emailed code without consuming it.
func (h *AuthHandler) PasswordVerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	if err := h.Auth.VerifyResetOTP(c.Request.Context(), req.Email, req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PasswordReset sets a new password after OTP verification.
func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	if err := h.Auth.ResetPassword(c.Request.Context(), req.Email, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		respondError(c, domain.ErrTokenInvalid)
		return
	}

	view, err := h.Auth.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Logout clears the session cookie. The token itself stays valid until
// expiry; sessions are stateless.
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.cfg.SessionCookieName != "" {
		c.SetCookie(h.cfg.SessionCookieName, "", -1, "/", "", h.secureCookies(), true)
	}
	c.Status(http.StatusNoContent)
}

// MFASetup starts second factor activation for the authenticated user.
func (h *AuthHandler) MFASetup(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		respondError(c, domain.ErrTokenInvalid)
		return
	}

	setup, err := h.MFA.BeginSetup(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
	})
}

// MFAConfirm activates the pending second factor.
func (h *AuthHandler) MFAConfirm(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		respondError(c, domain.ErrTokenInvalid)
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidInput)
		return
	}

	if err := h.MFA.ConfirmSetup(c.Request.Context(), claims.UserID, req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MFADisable turns the second factor off.
func (h *AuthHandler) MFADisable(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		respondError(c, domain.ErrTokenInvalid)
		return
	}

	if err := h.MFA.Disable(c.Request.Context(), claims.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	if h.cfg.SessionCookieName == "" {
		return
	}
	maxAge := int(h.cfg.SessionTokenTTL.Seconds())
	c.SetCookie(h.cfg.SessionCookieName, token, maxAge, "/", "", h.secureCookies(), true)
}

func (h *AuthHandler) secureCookies() bool {
	return h.cfg.Environment == "production"
}
