package api

import (
	"net/http"

	"github.com/jmcleod/drivelocker/notes"
)

const maxNoteBodySize = 1 << 20

// CreateNote handles POST /notes/create-notes.
func (a *API) CreateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[CreateNoteRequest](w, r, maxNoteBodySize)
	if !ok {
		return
	}
	note, err := a.notes.Create(r.Context(), id.Email, req.Title, req.Notes)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse(note))
}

// ListNotes handles GET /notes/get-notes.
func (a *API) ListNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	page, ok := pageQuery(w, r)
	if !ok {
		return
	}
	list, total, err := a.notes.List(r.Context(), id.Email, page)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	out := make([]NoteResponse, 0, len(list))
	for _, n := range list {
		out = append(out, noteResponse(n))
	}
	writeJSON(w, http.StatusOK, ListNotesResponse{Notes: out, PaginationMeta: newPaginationMeta(page, total, len(out))})
}

// UpdateNote handles PUT /notes/update-notes.
func (a *API) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[UpdateNoteRequest](w, r, maxNoteBodySize)
	if !ok {
		return
	}
	note, err := a.notes.Update(r.Context(), id.Email, notes.UpdateInput{
		ID:        req.ID,
		Title:     req.Title,
		Content:   req.Notes,
		Favourite: req.IsFavourite,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse(note))
}

// DeleteNotes handles DELETE /notes/delete-notes. The body is a JSON array
// of note IDs.
func (a *API) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	ids, ok := decodeJSON[[]string](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	n, err := a.notes.Delete(r.Context(), id.Email, ids)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteNotesResponse{Deleted: n})
}
