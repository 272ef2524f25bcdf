package tokenguard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/civicpulse/tokenguard/session"
)

// CreateUserSession stores a session record for userID carrying data and
// returns its opaque id. A non-positive ttl uses Config.Session.DefaultTTL.
func (e *Engine) CreateUserSession(ctx context.Context, userID string, data map[string]any, ttl time.Duration) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if ttl <= 0 {
		ttl = e.config.Session.DefaultTTL
	}

	id, err := e.sessions.Create(ctx, userID, data, ttl)
	if err != nil {
		return "", e.sessionError("session.create", err)
	}
	e.metricInc(MetricSessionCreated)
	return id, nil
}

// GetUserSession returns the live record for sessionID or ErrSessionNotFound.
func (e *Engine) GetUserSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, e.sessionError("session.get", err)
	}
	return rec, nil
}

// UpdateSessionActivity sets the record's last activity to now and re-applies
// ttl. A non-positive ttl uses Config.Session.DefaultTTL.
func (e *Engine) UpdateSessionActivity(ctx context.Context, sessionID string, ttl time.Duration) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if ttl <= 0 {
		ttl = e.config.Session.DefaultTTL
	}

	if err := e.sessions.Touch(ctx, sessionID, ttl); err != nil {
		return e.sessionError("session.touch", err)
	}
	return nil
}

// RevokeUserSession deletes sessionID. Revoking a missing session is not an error.
func (e *Engine) RevokeUserSession(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return e.sessionError("session.delete", err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, sessionOwner(sessionID), sessionID, "", nil, nil)
	return nil
}

// RevokeAllUserSessions deletes every session owned by userID and returns how
// many were removed.
//
// On the in-process fallback backend sessions cannot be enumerated; the call
// logs a warning and returns 0 with a nil error.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, e.sessionError("session.delete_all", err)
	}
	e.metricInc(MetricSessionRevokedAll)
	e.emitAudit(ctx, auditEventSessionRevokedAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"count":   strconv.Itoa(n),
			"backend": e.KVBackend(),
		}
	})
	return n, nil
}

func (e *Engine) sessionError(op string, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrCorruptRecord):
		e.logger.Error("tokenguard: undecodable session record treated as missing",
			slog.String("op", op),
			slog.Any("err", err),
		)
		return ErrSessionNotFound
	case errors.Is(err, session.ErrInvalidUserID):
		return ErrInvalidUserID
	default:
		return e.unavailable(op, err)
	}
}

// sessionOwner extracts the user id from a "<userID>.<ulid>" session id.
func sessionOwner(sessionID string) string {
	i := strings.LastIndexByte(sessionID, '.')
	if i <= 0 {
		return ""
	}
	return sessionID[:i]
}
