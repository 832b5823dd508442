package api

import (
	"errors"
	"net/http"

	"github.com/jmcleod/drivelocker/files"
)

const (
	maxUploadSize   = 100 << 20
	maxUploadMemory = 8 << 20
)

// UploadFile handles POST /files/upload-file. The body is multipart with a
// "file" part and a "passkey" field.
func (a *API) UploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing_details", "multipart form with a file is required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_details", "file is required")
		return
	}
	defer file.Close()

	info, err := a.files.Upload(r.Context(), id.Email, files.UploadInput{
		Passkey:     r.FormValue("passkey"),
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fileResponse(info))
}

// ListFiles handles GET /files.
func (a *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	page, ok := pageQuery(w, r)
	if !ok {
		return
	}
	infos, total, err := a.files.List(r.Context(), id.Email, page)
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	out := make([]FileResponse, 0, len(infos))
	for _, f := range infos {
		out = append(out, fileResponse(f))
	}
	writeJSON(w, http.StatusOK, ListFilesResponse{Files: out, PaginationMeta: newPaginationMeta(page, total, len(out))})
}

// DeleteFiles handles DELETE /files/delete-files. The body is a JSON array
// of public IDs.
func (a *API) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	ids, ok := decodeJSON[[]string](w, r, maxJSONBodySize)
	if !ok {
		return
	}
	n, err := a.files.Delete(r.Context(), id.Email, ids)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteFilesResponse{Deleted: n})
}
