package api

import (
	"errors"
	"net/http"

	"github.com/jmcleod/drivelocker/account"
)

// Register handles POST /user/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	profile, err := a.accounts.Register(r.Context(), account.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		// The account exists even when the welcome email failed; the
		// client is told about the failure all the same.
		if profile != nil && errors.Is(err, account.ErrDispatchFailure) {
			a.logger.WarnContext(r.Context(), "account created without welcome email")
		}
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profileResponse(profile))
}

// Profile handles GET /user/profile.
func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	profile, err := a.accounts.Profile(r.Context(), id.Email)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(profile))
}

// AddPasskey handles POST /user/add-passkey.
func (a *API) AddPasskey(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[AddPasskeyRequest](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	if err := a.passkeys.Create(r.Context(), id.Email, req.Passkey); err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "passkey created"})
}
