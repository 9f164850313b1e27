package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docpair/internal/store"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.NotFoundf("invoice %s", "inv-1"), http.StatusNotFound},
		{"conflict", store.Conflictf("delivery note %s taken", "dn-1"), http.StatusConflict},
		{"validation", store.Validationf("wrong type"), http.StatusBadRequest},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, assert.AnError)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestDecodeBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme"}`))
		rec := httptest.NewRecorder()
		var p payload
		assert.True(t, decodeBody(rec, r, &p))
		assert.Equal(t, "acme", p.Name)
	})

	t.Run("empty body allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		var p payload
		assert.True(t, decodeBody(rec, r, &p))
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		var p payload
		assert.False(t, decodeBody(rec, r, &p))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
