package domain

import "errors"

// Error taxonomy shared across services. Repositories and services wrap these
// sentinels; the HTTP layer maps them to status codes. Raw store or transport
// errors never reach callers.
var (
	// ErrInvalidInput indicates caller-fixable input validation errors.
	ErrInvalidInput = errors.New("iam: invalid input")
	// ErrNotFound signals an unknown user, role, permission, or OTP record.
	ErrNotFound = errors.New("iam: not found")
	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// the two are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("iam: invalid credentials")
	// ErrTokenInvalid is the uniform outcome for tampered, expired, or
	// malformed session tokens.
	ErrTokenInvalid = errors.New("iam: token invalid")
	// ErrSecondFactorRequired means the password checked out but the account
	// has MFA enabled and a code must be submitted.
	ErrSecondFactorRequired = errors.New("iam: second factor required")
	// ErrSecondFactorInvalid indicates a wrong or expired time-based code.
	ErrSecondFactorInvalid = errors.New("iam: second factor invalid")
	// ErrNoPendingSetup means MFA confirmation arrived without a setup in flight.
	ErrNoPendingSetup = errors.New("iam: no pending mfa setup")
	// ErrAccountInactive rejects sign-in for deactivated accounts.
	ErrAccountInactive = errors.New("iam: account inactive")
	// ErrForbidden means authenticated but lacking the required role or permission.
	ErrForbidden = errors.New("iam: forbidden")
	// ErrConflict covers duplicate emails, duplicate role/permission names,
	// and duplicate role assignment.
	ErrConflict = errors.New("iam: conflict")
	// ErrRoleReferenced rejects deletion of a role still held by any user.
	ErrRoleReferenced = errors.New("iam: role still referenced")
	// ErrOTPExpired means the passcode outlived its validity window; the
	// reset flow must be restarted.
	ErrOTPExpired = errors.New("iam: one-time passcode expired")
	// ErrOTPMismatch means the submitted passcode does not match the live record.
	ErrOTPMismatch = errors.New("iam: one-time passcode mismatch")
	// ErrExternal signals an unavailable backing store or collaborator.
	ErrExternal = errors.New("iam: external dependency failure")
)
