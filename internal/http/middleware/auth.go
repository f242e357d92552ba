package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loopcraft/iamd/internal/token"
)

const claimsKey = "sessionClaims"

// Auth validates session tokens and attaches claims. Tokens ride either in
// the Authorization header or the session cookie; the header wins when both
// are present.
type Auth struct {
	Tokens     *token.Service
	CookieName string
}

// ValidateToken ensures the request carries a valid session token.
func (m *Auth) ValidateToken(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" && m.CookieName != "" {
		if cookie, err := c.Cookie(m.CookieName); err == nil {
			raw = cookie
		}
	}
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Session token required."})
		return
	}

	claims, err := m.Tokens.Validate(c.Request.Context(), raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Invalid session token."})
		return
	}

	c.Set(claimsKey, claims)
	c.Next()
}

// GetClaims exposes the validated session claims to handlers.
func GetClaims(c *gin.Context) (*token.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.Claims)
	return claims, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
