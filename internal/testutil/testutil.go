// Package testutil holds shared setup for package tests: a migrated
// in-memory database and JSON request helpers for gin routers.
package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/database"
)

// TokenIssuer mints bearer tokens for test requests.
type TokenIssuer interface {
	GenerateToken(userID, role string) (string, error)
}

// Response is the envelope every API handler answers with.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// NewTestDB opens a migrated in-memory database that is closed when the test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Initialize(":memory:")
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, database.Migrate(db), "failed to migrate test database")
	t.Cleanup(func() { db.Close() })
	return db
}

// AuthHeaders returns an Authorization header for the user and role.
func AuthHeaders(t testing.TB, issuer TokenIssuer, userID, role string) map[string]string {
	t.Helper()
	token, err := issuer.GenerateToken(userID, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest makes an HTTP request to the router. A non-nil body is sent as JSON.
func MakeRequest(router *gin.Engine, method, url string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, url, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// Decode parses the response envelope.
func Decode(t testing.TB, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

// AssertSuccessResponse checks the status and success flag and decodes data into out.
func AssertSuccessResponse(t testing.TB, w *httptest.ResponseRecorder, expectedStatus int, out interface{}) {
	t.Helper()
	require.Equal(t, expectedStatus, w.Code, "body: %s", w.Body.String())

	resp := Decode(t, w)
	assert.True(t, resp.Success)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
}

// AssertErrorResponse checks the status and failure flag and returns the error message.
func AssertErrorResponse(t testing.TB, w *httptest.ResponseRecorder, expectedStatus int) string {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "body: %s", w.Body.String())
	if w.Code == http.StatusUnauthorized || w.Body.Len() == 0 {
		return ""
	}

	resp := Decode(t, w)
	assert.False(t, resp.Success)
	return resp.Error
}
