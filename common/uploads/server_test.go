package uploads

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "a"), []byte("blob"), 0o644))
	s := Server{Dir: dir, Prefix: "/uploads"}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "blob", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
