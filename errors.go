package authkit

import "errors"

// The engine collapses internal failure detail into this small set of
// sentinels. Credential and second-factor failures are deliberately generic
// so callers cannot distinguish a wrong password from an unknown account.
var (
	// ErrInvalidCredentials covers every credential failure: wrong
	// password, unknown account, malformed email.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited means the caller exhausted its request budget for
	// the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrSecondFactorRequired means the password was correct but a
	// second factor must be completed before tokens are issued.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrInvalidSecondFactor covers every second-factor failure: wrong
	// code, spent recovery code, unknown method.
	ErrInvalidSecondFactor = errors.New("invalid second factor")
	// ErrTokenExpired distinguishes expiry from other token failures so
	// the silent-refresh path can trigger. All other token errors reject
	// outright.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers unparseable or wrongly signed tokens.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrSessionNotFound means the token verified but its session no
	// longer exists or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInfrastructureUnavailable is the generic surface for durable
	// store or cache failures. Details are logged, never returned.
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")
	// ErrAccountExists is returned by Register for a duplicate email.
	ErrAccountExists = errors.New("account already exists")
)
