package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/loopcraft/iamd/internal/config"
	"github.com/loopcraft/iamd/internal/http/handler"
	"github.com/loopcraft/iamd/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	iamHandler *handler.IAMHandler,
	authMiddleware *middleware.Auth,
	guard *middleware.Guard,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/login/mfa", authHandler.LoginMFA)
		authGroup.POST("/social/callback", authHandler.SocialCallback)
		authGroup.POST("/sso/exchange", authHandler.SSOExchange)

		password := authGroup.Group("/password")
		{
			password.POST("/forgot", authHandler.PasswordForgot)
			password.POST("/verify-otp", authHandler.PasswordVerifyOTP)
			password.POST("/reset", authHandler.PasswordReset)
		}

		authGroup.GET("/me", authMiddleware.ValidateToken, authHandler.Me)
		authGroup.POST("/logout", authMiddleware.ValidateToken, authHandler.Logout)

		factor := authGroup.Group("/mfa", authMiddleware.ValidateToken)
		{
			factor.POST("/setup", authHandler.MFASetup)
			factor.POST("/confirm", authHandler.MFAConfirm)
			factor.POST("/disable", authHandler.MFADisable)
		}
	}

	iamGroup := r.Group("/iam", authMiddleware.ValidateToken, guard.RequirePermission("iam:manage"))
	{
		iamGroup.GET("/roles", iamHandler.ListRoles)
		iamGroup.POST("/roles", iamHandler.CreateRole)
		iamGroup.PUT("/roles/:id", iamHandler.UpdateRole)
		iamGroup.DELETE("/roles/:id", iamHandler.DeleteRole)

		iamGroup.GET("/permissions", iamHandler.ListPermissions)
		iamGroup.POST("/permissions", iamHandler.CreatePermission)

		iamGroup.POST("/users/:id/roles/:roleID", iamHandler.AssignRole)
		iamGroup.DELETE("/users/:id/roles/:roleID", iamHandler.RemoveRole)
		iamGroup.GET("/users/:id/permissions", iamHandler.ResolvePermissions)
	}

	return r
}
