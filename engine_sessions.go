package authkit

import (
	"context"

	"github.com/zenith-platform/authkit/session"
)

// Logout destroys the session. Destroying a session that is already gone is
// not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.sessions.Destroy(ctx, sessionID); err != nil {
		return e.infra(ctx, "destroy session", err)
	}
	e.emit(ctx, SecurityEvent{
		EventType: EventLogout,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// LogoutAll destroys every live session for the account, signing it out
// everywhere.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	n, err := e.sessions.DestroyAll(ctx, accountID)
	if err != nil {
		return n, e.infra(ctx, "destroy sessions", err)
	}
	e.emit(ctx, SecurityEvent{
		EventType: EventLogoutAll,
		AccountID: accountID,
		Success:   true,
	})
	return n, nil
}

// ListSessions returns the account's live sessions, most recently active
// first, for the security settings screen.
func (e *Engine) ListSessions(ctx context.Context, accountID string) ([]*session.Session, error) {
	sessions, err := e.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, e.infra(ctx, "list sessions", err)
	}
	return sessions, nil
}

// RevokeSession destroys one of the account's sessions. Sessions belonging
// to other accounts are invisible: revoking them reports ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	sessions, err := e.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "list sessions", err)
	}
	for _, sess := range sessions {
		if sess.ID == sessionID {
			if err := e.sessions.Destroy(ctx, sessionID); err != nil {
				return e.infra(ctx, "destroy session", err)
			}
			e.emit(ctx, SecurityEvent{
				EventType: EventSessionRevoked,
				AccountID: accountID,
				SessionID: sessionID,
				Success:   true,
			})
			return nil
		}
	}
	return ErrSessionNotFound
}

// RevokeOtherSessions destroys every session of the account except the
// caller's own, and returns how many were revoked.
func (e *Engine) RevokeOtherSessions(ctx context.Context, accountID, keepSessionID string) (int, error) {
	sessions, err := e.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, e.infra(ctx, "list sessions", err)
	}
	n := 0
	for _, sess := range sessions {
		if sess.ID == keepSessionID {
			continue
		}
		if err := e.sessions.Destroy(ctx, sess.ID); err != nil {
			return n, e.infra(ctx, "destroy session", err)
		}
		n++
	}
	if n > 0 {
		e.emit(ctx, SecurityEvent{
			EventType: EventSessionRevoked,
			AccountID: accountID,
			SessionID: keepSessionID,
			Success:   true,
			Metadata:  map[string]string{"scope": "others"},
		})
	}
	return n, nil
}
