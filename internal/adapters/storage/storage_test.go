package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPUploaderPuts(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotType, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotAuth, gotType = r.Header.Get("Authorization"), r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL+"/artifacts/", "secret")
	loc, err := u.UploadArtifact(context.Background(), []byte("mkv"), "video/x-matroska")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "video/x-matroska", gotType)
	assert.Equal(t, []byte("mkv"), gotBody)
	assert.True(t, strings.HasPrefix(gotPath, "/artifacts/"))
	assert.True(t, strings.HasSuffix(gotPath, ".mkv"))
	assert.Equal(t, srv.URL+gotPath, loc)
}

func TestHTTPUploaderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPUploader(srv.URL, "").UploadArtifact(context.Background(), []byte("x"), "text/plain")
	assert.ErrorContains(t, err, "403")
}

func TestHTTPUploaderWaitsForSlowServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	loc, err := NewHTTPUploader(srv.URL, "").UploadArtifact(context.Background(), []byte("x"), "video/x-matroska")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, ".mkv"))
}

func TestFileStoreWrites(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	loc, err := s.UploadArtifact(context.Background(), []byte("hello"), "application/octet-stream")
	require.NoError(t, err)

	parsed, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "file", parsed.Scheme)
	data, err := os.ReadFile(parsed.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
