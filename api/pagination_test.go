package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/drivelocker/storage"
)

func TestPageQuery(t *testing.T) {
	for query, want := range map[string]storage.Page{
		"":                   {Limit: defaultPageLimit},
		"limit=10":           {Limit: 10},
		"limit=0&offset=4":   {Limit: defaultPageLimit, Offset: 4},
		"limit=250":          {Limit: maxPageLimit},
		"offset=20&limit=5":  {Limit: 5, Offset: 20},
		"offset=1000000":     {Limit: defaultPageLimit, Offset: 1000000},
		"limit=&offset=":     {Limit: defaultPageLimit},
		"limit=3&other=true": {Limit: 3},
	} {
		rec := httptest.NewRecorder()
		page, ok := pageQuery(rec, httptest.NewRequest(http.MethodGet, "/files?"+query, nil))
		require.True(t, ok, query)
		assert.Equal(t, want, page, query)
	}
}

func TestPageQueryRejectsMalformed(t *testing.T) {
	for _, query := range []string{"limit=-1", "offset=-5", "limit=ten", "offset=1.5", "limit=9999999999999999999999"} {
		rec := httptest.NewRecorder()
		_, ok := pageQuery(rec, httptest.NewRequest(http.MethodGet, "/files?"+query, nil))
		require.False(t, ok, query)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "invalid_page", body.Code, query)
	}
}

func TestNewPaginationMeta(t *testing.T) {
	page := storage.Page{Limit: 2, Offset: 2}

	meta := newPaginationMeta(page, 5, 2)
	assert.Equal(t, PaginationMeta{TotalCount: 5, Limit: 2, Offset: 2, HasMore: true}, meta)

	assert.False(t, newPaginationMeta(page, 4, 2).HasMore, "last full page")
	assert.False(t, newPaginationMeta(storage.Page{Limit: 2, Offset: 9}, 4, 0).HasMore, "past the end")
	assert.False(t, newPaginationMeta(storage.Page{Limit: 2}, 0, 0).HasMore, "empty listing")
}
