package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/files"
	"github.com/jmcleod/drivelocker/notes"
	"github.com/jmcleod/drivelocker/token"
)

const (
	maxJSONBodySize = 64 << 10
	internalMessage = "internal error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeInternalError logs err and answers with a generic 500.
func (a *API) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.ErrorContext(r.Context(), msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal", internalMessage)
}

type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{account.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{account.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{account.ErrEmailAlreadyExists, http.StatusConflict, "email_exists"},
	{account.ErrInvalidOTP, http.StatusBadRequest, "invalid_otp"},
	{account.ErrOTPExpired, http.StatusBadRequest, "otp_expired"},
	{account.ErrMissingDetails, http.StatusBadRequest, "missing_details"},
	{account.ErrWeakPasskey, http.StatusBadRequest, "weak_passkey"},
	{account.ErrPasskeyAlreadyExists, http.StatusConflict, "passkey_exists"},
	{account.ErrInvalidPasskey, http.StatusUnauthorized, "invalid_passkey"},
	{account.ErrDispatchFailure, http.StatusInternalServerError, "dispatch_failure"},
	{files.ErrFileNotFound, http.StatusNotFound, "file_not_found"},
	{files.ErrFileStorage, http.StatusInternalServerError, "file_storage"},
	{notes.ErrNoteNotFound, http.StatusNotFound, "note_not_found"},
	{notes.ErrDuplicateTitle, http.StatusConflict, "note_title_exists"},
	{token.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
}

// mapError translates a service error into a response. Client errors carry
// the error text; server-side kinds get a fixed message and are logged.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		if k.status >= http.StatusInternalServerError {
			a.logger.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path), slog.String("code", k.code), slog.Any("error", err))
			writeError(w, k.status, k.code, k.target.Error())
			return
		}
		a.logger.InfoContext(r.Context(), "request rejected",
			slog.String("path", r.URL.Path), slog.String("code", k.code))
		writeError(w, k.status, k.code, err.Error())
		return
	}
	a.writeInternalError(w, r, "unhandled error", err)
}

// decodeJSON reads a JSON body of at most maxBytes into a T. On failure it
// writes a 400 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("request body exceeds %d bytes", maxBytes))
			return v, false
		}
		writeError(w, http.StatusBadRequest, "missing_details", "invalid request body")
		return v, false
	}
	return v, true
}
