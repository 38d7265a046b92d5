package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authkit "github.com/zenith-platform/authkit"
	"github.com/zenith-platform/authkit/device"
	"github.com/zenith-platform/authkit/middleware"
	"github.com/zenith-platform/authkit/netutil"
)

type server struct {
	engine  *authkit.Engine
	cookies middleware.CookieWriter
	log     *zap.Logger
}

func (s *server) requestDevice(r *http.Request) authkit.RequestDevice {
	return authkit.RequestDevice{
		UserAgent: netutil.TruncateUserAgent(r.UserAgent()),
		IP: netutil.ClientAddr(
			r.Header.Get("X-Forwarded-For"),
			r.Header.Get("X-Real-IP"),
			r.RemoteAddr,
		),
		DeviceID: middleware.DeviceID(r),
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses without
// leaking internal detail.
func (s *server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authkit.ErrInvalidCredentials),
		errors.Is(err, authkit.ErrInvalidSecondFactor),
		errors.Is(err, authkit.ErrTokenExpired),
		errors.Is(err, authkit.ErrTokenMalformed),
		errors.Is(err, authkit.ErrSessionNotFound):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, authkit.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
	case errors.Is(err, authkit.ErrAccountExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "account already exists"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service unavailable"})
	}
}

// writeChallenge answers a stepped-up login: no tokens, just what the
// client needs to present the second-factor form.
func (s *server) writeChallenge(w http.ResponseWriter, res *authkit.LoginResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"second_factor_required": true,
		"method_hint":            res.MethodHint,
		"account_id":             res.AccountID,
	})
}

func (s *server) writeLoginResult(w http.ResponseWriter, res *authkit.LoginResult, rememberMe bool) {
	s.cookies.SetAccess(w, res.AccessToken, rememberMe)
	s.cookies.SetRefresh(w, res.RefreshToken)
	if res.TrustedDeviceID != "" {
		s.cookies.SetDevice(w, res.TrustedDeviceID, device.TrustTTL)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":    res.AccountID,
		"role":          res.Role,
		"access_token":  res.AccessToken,
		"refresh_token": res.RefreshToken,
	})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Name       string `json:"name"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	res, err := s.engine.Register(r.Context(), req.Email, req.Name, req.Password, req.RememberMe, s.requestDevice(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeLoginResult(w, res, req.RememberMe)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password, req.RememberMe, s.requestDevice(r))
	switch {
	case errors.Is(err, authkit.ErrSecondFactorRequired):
		s.writeChallenge(w, res)
	case err != nil:
		s.writeError(w, err)
	default:
		s.writeLoginResult(w, res, req.RememberMe)
	}
}

func (s *server) completeSecondFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"account_id"`
		Method      string `json:"method"`
		Code        string `json:"code"`
		TrustDevice bool   `json:"trust_device"`
		RememberMe  bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	res, err := s.engine.CompleteSecondFactor(r.Context(), req.AccountID,
		authkit.SecondFactorMethod(req.Method), req.Code, req.TrustDevice,
		req.RememberMe, s.requestDevice(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeLoginResult(w, res, req.RememberMe)
}

func (s *server) requestEmailCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if err := s.engine.RequestEmailCode(r.Context(), req.AccountID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	refresh := middleware.RefreshToken(r)
	if refresh == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	access, err := s.engine.Refresh(r.Context(), refresh)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.cookies.SetAccess(w, access, false)
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.Logout(r.Context(), id.SessionID); err != nil {
		s.writeError(w, err)
		return
	}
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *server) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.ChangePassword(r.Context(), id.AccountID, id.SessionID,
		req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

func (s *server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.DeactivateAccount(r.Context(), id.AccountID); err != nil {
		s.writeError(w, err)
		return
	}
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *server) listSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	sessions, err := s.engine.ListSessions(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"current":  id.SessionID,
	})
}

func (s *server) revokeSession(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.RevokeSession(r.Context(), id.AccountID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *server) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	n, err := s.engine.RevokeOtherSessions(r.Context(), id.AccountID, id.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) beginTwoFactor(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	setup, err := s.engine.BeginTwoFactorSetup(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret": setup.Secret,
		"uri":    setup.URI,
	})
}

func (s *server) confirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	id, _ := authkit.IdentityFromContext(r.Context())
	codes, err := s.engine.ConfirmTwoFactorSetup(r.Context(), id.AccountID, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recovery_codes": codes})
}

func (s *server) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.DisableTwoFactor(r.Context(), id.AccountID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *server) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	state, err := s.engine.TwoFactorStatus(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              state.Status,
		"recovery_codes_left": state.RecoveryCodesLeft,
	})
}

func (s *server) listDevices(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	devices, err := s.engine.ListTrustedDevices(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *server) revokeDevice(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	if err := s.engine.RevokeDevice(r.Context(), id.AccountID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *server) revokeAllDevices(w http.ResponseWriter, r *http.Request) {
	id, _ := authkit.IdentityFromContext(r.Context())
	n, err := s.engine.RevokeAllDevices(r.Context(), id.AccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}
