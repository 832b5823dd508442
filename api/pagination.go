package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/jmcleod/drivelocker/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// PaginationMeta describes the window a listing response covers.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageQuery reads the limit and offset query parameters. A missing or
// zero limit means defaultPageLimit and larger limits are capped at
// maxPageLimit. Malformed or negative values are answered with 400 and
// ok is false.
func pageQuery(w http.ResponseWriter, r *http.Request) (page storage.Page, ok bool) {
	q := r.URL.Query()
	limit, okLimit := queryCount(q, "limit")
	offset, okOffset := queryCount(q, "offset")
	if !okLimit || !okOffset {
		writeError(w, http.StatusBadRequest, "invalid_page", "limit and offset must be non-negative integers")
		return storage.Page{}, false
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	return storage.Page{Limit: min(limit, maxPageLimit), Offset: offset}, true
}

func queryCount(q url.Values, key string) (int, bool) {
	v := q.Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil && n >= 0
}

// newPaginationMeta describes a page of n items out of total.
func newPaginationMeta(page storage.Page, total, n int) PaginationMeta {
	return PaginationMeta{
		TotalCount: total,
		Limit:      page.Limit,
		Offset:     page.Offset,
		HasMore:    page.Offset+n < total,
	}
}
