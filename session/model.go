package session

import "time"

// Session binds a login to an account, independent of any token. The
// durable table owns the record; the in-process map only caches it.
type Session struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DeviceDescriptor is the client-supplied context recorded on a session.
type DeviceDescriptor struct {
	UserAgent string
	IPAddress string
}

// expired reports whether the session is past its hard expiry or its
// sliding window at the given instant.
func (s *Session) expired(now time.Time, slidingTTL time.Duration) bool {
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return true
	}
	return now.Sub(s.LastActivity) > slidingTTL
}
