package tokenguard

import "errors"

var (
	// ErrTokenFormat is returned when a refresh token is not 64 lowercase hex characters.
	// It is detected before any storage access.
	ErrTokenFormat = errors.New("malformed refresh token")
	// ErrTokenNotFound is returned when no stored row matches the token hash.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenRevoked is returned when a token was revoked and its grace window has closed.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenReplay is returned when rotation is attempted on a revoked token that has no
	// valid successor. Callers should terminate the session.
	ErrTokenReplay = errors.New("refresh token replay suspected")
	// ErrDuplicateToken is returned when a token hash collides with a stored row.
	ErrDuplicateToken = errors.New("refresh token already stored")
	// ErrInvalidUserID is returned for an empty user identifier.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidTokenID is returned for an empty access-token identifier.
	ErrInvalidTokenID = errors.New("invalid token id")
	// ErrInvalidRateLimit is returned for a non-positive max or a window under one second.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
	// ErrAccessTokenInvalid is returned when an access token fails signature or claim checks.
	ErrAccessTokenInvalid = errors.New("invalid access token")
	// ErrAccessVerifierDisabled is returned by access-token operations when no verification key is configured.
	ErrAccessVerifierDisabled = errors.New("access token verification not configured")
	// ErrSessionNotFound is returned when a session id has no live record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures from the key-value or refresh-token store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidConfig is returned by Config.Validate and Builder.Build.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
