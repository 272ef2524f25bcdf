package tokenguard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	internalaudit "github.com/civicpulse/tokenguard/internal/audit"
	"github.com/civicpulse/tokenguard/refresh"
)

const (
	auditEventAccessBlacklisted      = "access_blacklisted"
	auditEventSessionRevoked         = "session_revoked"
	auditEventSessionRevokedAll      = "session_revoked_all"
	auditEventRateLimited            = "rate_limited"
	auditEventRefreshIssued          = "refresh_issued"
	auditEventRefreshRotated         = "refresh_rotated"
	auditEventRefreshRotationRetry   = "refresh_rotation_retry"
	auditEventRefreshGraceUse        = "refresh_grace_use"
	auditEventRefreshReplaySuspected = "refresh_replay_suspected"
	auditEventRefreshRotationUnknown = "refresh_rotation_unknown_token"
	auditEventRefreshEvicted         = "refresh_evicted"
	auditEventRefreshRevoked         = "refresh_revoked"
	auditEventRefreshRevokedAll      = "refresh_revoked_all"
)

// AuditErrorCode is the stable error label carried by failed audit events.
type AuditErrorCode string

const (
	auditErrTokenFormat    AuditErrorCode = "token_format"
	auditErrTokenNotFound  AuditErrorCode = "token_not_found"
	auditErrTokenExpired   AuditErrorCode = "token_expired"
	auditErrTokenRevoked   AuditErrorCode = "token_revoked"
	auditErrTokenReplay    AuditErrorCode = "token_replay"
	auditErrDuplicate      AuditErrorCode = "duplicate"
	auditErrRateLimited    AuditErrorCode = "rate_limited"
	auditErrInvalidAccess  AuditErrorCode = "invalid_access_token"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrInvalidRequest AuditErrorCode = "invalid_request"
	auditErrInternal       AuditErrorCode = "internal_error"
)

// auditDropLogEvery spaces out backpressure warnings.
const auditDropLogEvery = 1000

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
		Critical:   isCriticalAuditEvent,
		OnDrop: func(ev internalaudit.Event, total uint64) {
			if total == 1 || total%auditDropLogEvery == 0 {
				logger.Warn("tokenguard: audit events dropped under backpressure",
					slog.String("event_type", ev.EventType),
					slog.Uint64("dropped_total", total),
				)
			}
		},
	}, sink)
}

// isCriticalAuditEvent reports events that block rather than drop when the audit
// queue is full.
func isCriticalAuditEvent(eventType string) bool {
	switch eventType {
	case auditEventRefreshReplaySuspected, auditEventRefreshRotationUnknown:
		return true
	}
	return false
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	hashPrefix string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		SessionID:  sessionID,
		HashPrefix: hashPrefix,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitEvictions(ctx context.Context, userID string, evicted []refresh.Token) {
	if len(evicted) == 0 {
		return
	}
	e.metrics.Add(MetricRefreshEvicted, uint64(len(evicted)))
	for _, ev := range evicted {
		createdAt := ev.CreatedAt
		e.emitAudit(ctx, auditEventRefreshEvicted, true, userID, "", refresh.HashPrefix(ev.TokenHash), nil, func() map[string]string {
			return map[string]string{
				"reason":     "device_limit",
				"created_at": strconv.FormatInt(createdAt.Unix(), 10),
			}
		})
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenFormat):
		return auditErrTokenFormat
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenReplay):
		return auditErrTokenReplay
	case errors.Is(err, ErrDuplicateToken):
		return auditErrDuplicate
	case errors.Is(err, errRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccessTokenInvalid):
		return auditErrInvalidAccess
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInvalidUserID),
		errors.Is(err, ErrInvalidTokenID),
		errors.Is(err, ErrInvalidRateLimit):
		return auditErrInvalidRequest
	default:
		return auditErrInternal
	}
}

// errRateLimited only labels rate_limited audit events; CheckRateLimit reports
// denial through RateLimitResult, never as an error.
var errRateLimited = errors.New("rate limited")
