// Package authkit is the authentication core of the Zenith platform. The
// Engine composes the token service, session store, rate limiter,
// two-factor engine and trusted device registry into the login, refresh and
// request-authentication flows the HTTP layer builds on.
package authkit

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/zenith-platform/authkit/device"
	"github.com/zenith-platform/authkit/password"
	"github.com/zenith-platform/authkit/ratelimit"
	"github.com/zenith-platform/authkit/session"
	"github.com/zenith-platform/authkit/token"
	"github.com/zenith-platform/authkit/twofactor"
)

// SecondFactorMethod selects how a second factor is verified. The caller
// always states the method explicitly; the engine never guesses from the
// shape of the code.
type SecondFactorMethod string

const (
	// MethodApp verifies an authenticator app code.
	MethodApp SecondFactorMethod = "app"
	// MethodEmail verifies a one-time code sent by email.
	MethodEmail SecondFactorMethod = "email"
	// MethodRecovery burns a recovery code.
	MethodRecovery SecondFactorMethod = "recovery"
)

// RequestDevice is the client context accompanying an authentication call.
// DeviceID is the value of the long-lived device-trust cookie, if any.
type RequestDevice struct {
	UserAgent string
	IP        string
	DeviceID  string
}

// LoginResult is the outcome of Login, CompleteSecondFactor and Register.
// Either tokens are present, or SecondFactorRequired is set and everything
// else except AccountID and MethodHint is empty; the stepped-up form
// accompanies ErrSecondFactorRequired so callers can branch on the error
// and still render the challenge.
type LoginResult struct {
	AccountID            string
	Role                 string
	SessionID            string
	AccessToken          string
	RefreshToken         string
	SecondFactorRequired bool
	MethodHint           SecondFactorMethod
	// TrustedDeviceID is set when CompleteSecondFactor registered a new
	// trusted device; the HTTP layer turns it into the device cookie.
	TrustedDeviceID string
}

// Options wires an Engine. Accounts, Sessions and Tokens are required; the
// rest degrade gracefully when absent.
type Options struct {
	Accounts AccountStore
	Sessions *session.Store
	Tokens   *token.Service
	// Hasher defaults to bcrypt at production cost.
	Hasher *password.Hasher
	// Limiter is optional; without it no rate limiting is applied.
	Limiter *ratelimit.Limiter
	// AuthPolicy defaults to ratelimit.Auth.
	AuthPolicy ratelimit.Policy
	// SecondFactor is optional; without it every account is single-factor.
	SecondFactor *twofactor.Engine
	// Devices is optional; without it no device is ever trusted.
	Devices *device.Registry
	Audit   AuditConfig
	Sink    SecuritySink
	Metrics *Metrics
	Logger  *zap.Logger
}

// Engine is the auth orchestrator. All methods are safe for concurrent use.
type Engine struct {
	accounts   AccountStore
	sessions   *session.Store
	tokens     *token.Service
	hasher     *password.Hasher
	limiter    *ratelimit.Limiter
	authPolicy ratelimit.Policy
	second     *twofactor.Engine
	devices    *device.Registry
	audit      *securityDispatcher
	metrics    *Metrics
	log        *zap.Logger
}

// NewEngine validates the options and assembles the engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Accounts == nil {
		return nil, errOption("Accounts")
	}
	if opts.Sessions == nil {
		return nil, errOption("Sessions")
	}
	if opts.Tokens == nil {
		return nil, errOption("Tokens")
	}
	hasher := opts.Hasher
	if hasher == nil {
		var err error
		hasher, err = password.NewHasher(password.DefaultCost)
		if err != nil {
			return nil, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	policy := opts.AuthPolicy
	if policy.Name == "" {
		policy = ratelimit.Auth
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := &Engine{
		accounts:   opts.Accounts,
		sessions:   opts.Sessions,
		tokens:     opts.Tokens,
		hasher:     hasher,
		limiter:    opts.Limiter,
		authPolicy: policy,
		second:     opts.SecondFactor,
		devices:    opts.Devices,
		audit:      newSecurityDispatcher(opts.Audit, opts.Sink),
		metrics:    metrics,
		log:        log,
	}

	opts.Sessions.OnEvicted(func(n int) {
		e.metrics.SessionsEvicted.Add(float64(n))
		e.emit(context.Background(), SecurityEvent{
			EventType: EventSessionEvicted,
			Success:   true,
			Metadata:  map[string]string{"count": strconv.Itoa(n)},
		})
	})
	opts.Sessions.OnSwept(func(n int) {
		e.metrics.SessionsSwept.Add(float64(n))
	})
	if opts.Limiter != nil {
		opts.Limiter.OnDegraded(e.metrics.RateLimitDegraded.Inc)
	}

	return e, nil
}

// Close flushes the security event dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many security events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) emit(ctx context.Context, event SecurityEvent) {
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// rateGate applies the auth policy for the given action. The identity is
// the caller's IP when known, otherwise the supplied fallback.
func (e *Engine) rateGate(ctx context.Context, action, fallback string) error {
	if e.limiter == nil {
		return nil
	}
	identity := clientIPFromContext(ctx)
	if identity == "" || identity == "unknown" {
		identity = fallback
	}
	res := e.limiter.Check(ctx, e.authPolicy, identity, action)
	if !res.Allowed {
		e.metrics.RateLimitRejects.Inc()
		return ErrRateLimited
	}
	return nil
}

// finishLogin is the shared tail of every flow that ends authenticated:
// create the session, mint both tokens, emit the login event.
func (e *Engine) finishLogin(ctx context.Context, acct *Account, rememberMe bool, dev RequestDevice, eventType string) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, acct.ID, session.DeviceDescriptor{
		UserAgent: dev.UserAgent,
		IPAddress: dev.IP,
	})
	if err != nil {
		return nil, e.infra(ctx, "create session", err)
	}

	access, err := e.tokens.IssueAccess(acct.ID, sess.ID, acct.Role.String(), rememberMe)
	if err != nil {
		return nil, e.infra(ctx, "issue access token", err)
	}
	refresh, err := e.tokens.IssueRefresh(acct.ID, sess.ID)
	if err != nil {
		return nil, e.infra(ctx, "issue refresh token", err)
	}

	e.metrics.Logins.WithLabelValues("success").Inc()
	e.emit(ctx, SecurityEvent{
		EventType: eventType,
		AccountID: acct.ID,
		SessionID: sess.ID,
		Success:   true,
	})

	return &LoginResult{
		AccountID:    acct.ID,
		Role:         acct.Role.String(),
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// infra logs the real failure and returns the generic surface error.
func (e *Engine) infra(ctx context.Context, op string, err error) error {
	e.log.Error("infrastructure failure",
		zap.String("op", op),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Error(err))
	return ErrInfrastructureUnavailable
}

type optionError string

func (o optionError) Error() string { return "authkit: missing required option " + string(o) }

func errOption(name string) error { return optionError(name) }
