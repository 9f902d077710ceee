package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteUnauthorized(rec)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "UNAUTHENTICATED", body.Code)
	assert.Equal(t, "authentication required", body.Error)
}

func TestWriteForbiddenCarriesReason(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteForbidden(rec, "TENANT_ACCESS_DENIED", "wrong tenant")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "TENANT_ACCESS_DENIED", body.Code)
}

func TestWriteInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternalError(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "INTERNAL", body.Code)
}

func TestWriteConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteConflict(rec, "GHOST_SESSION_ACTIVE", "an impersonation session is already active")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "GHOST_SESSION_ACTIVE", decodeError(t, rec).Code)
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
