package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusNotFound, "Job not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeError(t, rec)
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "Job not found", body.Message)
}

func TestWriteErrorDefaultCodes(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:          "bad_request",
		http.StatusForbidden:           "forbidden",
		http.StatusMethodNotAllowed:    "method_not_allowed",
		http.StatusConflict:            "conflict",
		http.StatusTooManyRequests:     "too_many_requests",
		http.StatusInternalServerError: "internal_error",
	}
	for status, code := range cases {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteError(rec, status, "boom"))
		assert.Equal(t, code, decodeError(t, rec).Code)
	}
}

func TestWriteErrorCodeOverridesDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteErrorCode(rec, http.StatusTooManyRequests, "capacity_exhausted", "all job slots are busy"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "capacity_exhausted", body.Code)
	assert.Equal(t, "all job slots are busy", body.Message)
}

func TestRequireMethodWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/automation/start", nil)

	ok := RequireMethod(rec, req, http.MethodPost)
	assert.False(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", decodeError(t, rec).Code)
}
