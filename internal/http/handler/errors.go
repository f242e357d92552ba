package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loopcraft/iamd/internal/domain"
)

// respondError maps taxonomy sentinels onto HTTP statuses with stable error
// codes. Internal detail stays in the logs; clients get fixed descriptions.
func respondError(c *gin.Context, err error) {
	status, code, description := classify(err)
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": description})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", "The request is malformed or incomplete."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Wrong email or password."
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid_token", "Invalid session token."
	case errors.Is(err, domain.ErrSecondFactorRequired):
		return http.StatusUnauthorized, "second_factor_required", "A second factor code is required."
	case errors.Is(err, domain.ErrSecondFactorInvalid):
		return http.StatusUnauthorized, "invalid_second_factor", "Wrong or expired second factor code."
	case errors.Is(err, domain.ErrOTPExpired):
		return http.StatusUnauthorized, "otp_expired", "The code has expired. Request a new one."
	case errors.Is(err, domain.ErrOTPMismatch):
		return http.StatusUnauthorized, "otp_mismatch", "The code does not match."
	case errors.Is(err, domain.ErrAccountInactive):
		return http.StatusForbidden, "account_inactive", "This account has been deactivated."
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", "You do not have access to this resource."
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "The requested resource does not exist."
	case errors.Is(err, domain.ErrRoleReferenced):
		return http.StatusConflict, "role_referenced", "The role is still assigned to users."
	case errors.Is(err, domain.ErrNoPendingSetup):
		return http.StatusConflict, "no_pending_setup", "No second factor setup is in progress."
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict", "The resource already exists."
	case errors.Is(err, domain.ErrExternal):
		return http.StatusBadGateway, "dependency_failure", "A backing service is unavailable."
	default:
		return http.StatusInternalServerError, "internal_error", "Something went wrong."
	}
}
