package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_details", "email and password are required")
		return
	}

	acct, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	raw, expires, err := a.tokens.Issue(acct.Email)
	if err != nil {
		a.writeInternalError(w, r, "failed to issue token", err)
		return
	}
	a.setTokenCookie(w, raw)
	a.logger.InfoContext(r.Context(), "login", slog.String("account_id", acct.ID))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     raw,
		ExpiresAt: expires.UTC(),
	})
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	a.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// IsAuthenticated handles GET /auth/is-authenticated. Reaching the handler
// means the middleware accepted the token.
func (a *API) IsAuthenticated(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, IsAuthenticatedResponse{Authenticated: true})
}

// SendVerifyOTP handles POST /auth/send-otp.
func (a *API) SendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	profile, err := a.accounts.Profile(r.Context(), id.Email)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if profile.Verified {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "account already verified"})
		return
	}
	if err := a.otp.IssueVerify(r.Context(), id.Email); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "verification OTP sent to " + id.Email})
}

// VerifyEmail handles POST /auth/verify-email.
func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[VerifyEmailRequest](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	if err := a.otp.VerifyEmail(r.Context(), id.Email, req.OTP); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "email verified"})
}

// SendResetOTP handles POST /auth/send-reset-otp?email=.
func (a *API) SendResetOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_details", "email is required")
		return
	}
	if err := a.otp.IssueReset(r.Context(), email); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password reset OTP sent to " + email})
}

// ResetPassword handles POST /auth/reset-password.
func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResetPasswordRequest](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "missing_details", "email is required")
		return
	}
	if err := a.otp.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password has been reset"})
}
