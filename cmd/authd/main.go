// Command authd runs the Zenith authentication service: login, two-factor,
// refresh, session and device management over HTTP.
//
// Configuration comes from the environment (see the config package); a
// local .env file is honored. JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are
// required, DATABASE_URL selects the durable store and REDIS_ADDR enables
// rate limiting plus the session warm cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	authkit "github.com/zenith-platform/authkit"
	"github.com/zenith-platform/authkit/config"
	"github.com/zenith-platform/authkit/device"
	"github.com/zenith-platform/authkit/middleware"
	"github.com/zenith-platform/authkit/ratelimit"
	"github.com/zenith-platform/authkit/session"
	"github.com/zenith-platform/authkit/token"
	"github.com/zenith-platform/authkit/twofactor"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("authd exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := token.NewService(token.Config{
		AccessSecret:          []byte(cfg.AccessSecret),
		RefreshSecret:         []byte(cfg.RefreshSecret),
		PreviousAccessSecret:  secretBytes(cfg.PreviousAccessSecret),
		PreviousRefreshSecret: secretBytes(cfg.PreviousRefreshSecret),
	})
	if err != nil {
		return err
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
	}

	var (
		accounts    authkit.AccountStore
		sessTable   session.Table
		tfStore     twofactor.Store
		deviceStore device.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		accounts = authkit.NewPGAccountStore(pool)
		sessTable = session.NewPGTable(pool)
		tfStore = twofactor.NewPGStore(pool)
		deviceStore = device.NewPGStore(pool)
		log.Info("using postgres-backed stores")
	} else {
		accounts = authkit.NewMemoryAccountStore()
		sessTable = session.NewMemoryTable()
		tfStore = twofactor.NewMemoryStore()
		deviceStore = device.NewMemoryStore()
		log.Warn("DATABASE_URL unset, using in-memory stores")
	}

	sessions := session.NewStore(sessTable, rdb, log, session.Config{
		MaxSessions: cfg.MaxSessions,
	})
	sessions.StartSweeper(ctx)

	var limiter *ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.New(rdb, log)
	}

	engine, err := authkit.NewEngine(authkit.Options{
		Accounts:     accounts,
		Sessions:     sessions,
		Tokens:       tokens,
		Limiter:      limiter,
		AuthPolicy:   ratelimit.Policy{Name: "auth", Limit: cfg.AuthRateLimit, Window: cfg.AuthRateWindow},
		SecondFactor: twofactor.NewEngine(tfStore, logMailer{log}, log),
		Devices:      device.NewRegistry(deviceStore, log),
		Audit:        authkit.AuditConfig{Enabled: true, BufferSize: 1024, DropIfFull: true},
		Sink:         authkit.NewJSONWriterSink(os.Stdout),
		Metrics:      authkit.NewMetrics(prometheus.DefaultRegisterer),
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	cookies := middleware.CookieWriter{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}
	srv := &server{engine: engine, cookies: cookies, log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, middleware.RequestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		if limiter != nil {
			api := ratelimit.Policy{Name: "api", Limit: cfg.APIRateLimit, Window: cfg.APIRateWindow}
			r.Use(middleware.RateLimit(limiter, api, "auth_api"))
		}

		r.Post("/register", srv.register)
		r.Post("/login", srv.login)
		r.Post("/login/second-factor", srv.completeSecondFactor)
		r.Post("/login/email-code", srv.requestEmailCode)
		r.Post("/refresh", srv.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(engine, cookies))

			r.Post("/logout", srv.logout)
			r.Post("/logout-all", srv.logoutAll)

			r.Put("/password", srv.changePassword)
			r.Delete("/account", srv.deactivateAccount)

			r.Get("/sessions", srv.listSessions)
			r.Delete("/sessions/{id}", srv.revokeSession)
			r.Post("/sessions/revoke-others", srv.revokeOtherSessions)

			r.Post("/2fa/setup", srv.beginTwoFactor)
			r.Post("/2fa/confirm", srv.confirmTwoFactor)
			r.Delete("/2fa", srv.disableTwoFactor)
			r.Get("/2fa", srv.twoFactorStatus)

			r.Get("/devices", srv.listDevices)
			r.Delete("/devices/{id}", srv.revokeDevice)
			r.Delete("/devices", srv.revokeAllDevices)
		})
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("authd listening", zap.String("addr", cfg.ListenAddr))
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func secretBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// logMailer stands in for the platform's email dispatcher. It logs that a
// code was issued without the code itself.
type logMailer struct {
	log *zap.Logger
}

func (m logMailer) SendOTP(_ context.Context, accountID, email, _ string) error {
	m.log.Info("email otp issued",
		zap.String("account_id", accountID),
		zap.String("email", email))
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
