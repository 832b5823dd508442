package api

import (
	"time"

	"github.com/jmcleod/drivelocker/account"
	"github.com/jmcleod/drivelocker/files"
	"github.com/jmcleod/drivelocker/storage"
)

// RegisterRequest is the JSON body for POST /user/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileResponse is returned from POST /user/register and GET /user/profile.
type ProfileResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	IsAccountVerified bool   `json:"is_account_verified"`
	HasPasskey        bool   `json:"has_passkey"`
}

func profileResponse(p *account.Profile) ProfileResponse {
	return ProfileResponse{
		ID:                p.ID,
		Name:              p.Name,
		Email:             p.Email,
		IsAccountVerified: p.Verified,
		HasPasskey:        p.HasPasskey,
	}
}

// AddPasskeyRequest is the JSON body for POST /user/add-passkey.
type AddPasskeyRequest struct {
	Passkey string `json:"passkey"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAuthenticatedResponse is returned from GET /auth/is-authenticated.
type IsAuthenticatedResponse struct {
	Authenticated bool `json:"authenticated"`
}

// VerifyEmailRequest is the JSON body for POST /auth/verify-email.
type VerifyEmailRequest struct {
	OTP string `json:"otp"`
}

// ResetPasswordRequest is the JSON body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// FileResponse describes one stored file.
type FileResponse struct {
	PublicID    string    `json:"public_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Format      string    `json:"format,omitempty"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

func fileResponse(f *files.Info) FileResponse {
	return FileResponse{
		PublicID:    f.PublicID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Format:      f.Format,
		Size:        f.Size,
		URL:         f.URL,
		CreatedAt:   f.CreatedAt,
	}
}

// ListFilesResponse is returned from GET /files.
type ListFilesResponse struct {
	Files []FileResponse `json:"files"`
	PaginationMeta
}

// DeleteFilesResponse is returned from DELETE /files/delete-files.
type DeleteFilesResponse struct {
	Deleted int `json:"deleted"`
}

// CreateNoteRequest is the JSON body for POST /notes/create-notes.
type CreateNoteRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}

// UpdateNoteRequest is the JSON body for PUT /notes/update-notes.
type UpdateNoteRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Notes       string `json:"notes"`
	IsFavourite bool   `json:"is_favourite"`
}

// NoteResponse is a note as returned by the notes endpoints.
type NoteResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Notes       string    `json:"notes"`
	IsFavourite bool      `json:"is_favourite"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func noteResponse(n *storage.Note) NoteResponse {
	return NoteResponse{
		ID:          n.ID,
		Title:       n.Title,
		Notes:       n.Content,
		IsFavourite: n.Favourite,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

// ListNotesResponse is returned from GET /notes/get-notes.
type ListNotesResponse struct {
	Notes []NoteResponse `json:"notes"`
	PaginationMeta
}

// DeleteNotesResponse is returned from DELETE /notes/delete-notes.
type DeleteNotesResponse struct {
	Deleted int `json:"deleted"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
