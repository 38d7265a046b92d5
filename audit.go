package authkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// SecurityEvent is one entry in the security event stream. Every
// security-relevant outcome is emitted here, including ones whose
// user-facing error is generic.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event types emitted by the engine.
const (
	EventRegistered         = "account.registered"
	EventDeactivated        = "account.deactivated"
	EventReactivated        = "account.reactivated"
	EventPasswordChanged    = "account.password_changed"
	EventLogin              = "auth.login"
	EventLoginFailed        = "auth.login_failed"
	EventLogout             = "auth.logout"
	EventLogoutAll          = "auth.logout_all"
	EventSecondFactorFailed = "auth.second_factor_failed"
	EventTwoFactorEnabled   = "twofactor.enabled"
	EventTwoFactorDisabled  = "twofactor.disabled"
	EventRecoveryCodeUsed   = "twofactor.recovery_code_used"
	EventRecoveryCodeReuse  = "twofactor.recovery_code_reuse"
	EventDeviceTrusted      = "device.trusted"
	EventDeviceRevoked      = "device.revoked"
	EventDeviceExpired      = "device.expired"
	EventSessionEvicted     = "session.evicted"
	EventSessionRevoked     = "session.revoked"
)

// SecuritySink receives events from the dispatcher. Emit must not block for
// long; the dispatcher calls it from a single goroutine.
type SecuritySink interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, SecurityEvent) {}

// ChannelSink forwards events to a buffered channel for in-process
// consumers.
type ChannelSink struct {
	events chan SecurityEvent
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan SecurityEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event SecurityEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the sink's receive side.
func (s *ChannelSink) Events() <-chan SecurityEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event SecurityEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
