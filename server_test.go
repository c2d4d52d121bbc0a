package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/postboard-go/config"
	"github.com/user/postboard-go/logging"
	"github.com/user/postboard-go/uploads"
)

func echoHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(name))
	})
}

func testRouter(t *testing.T, storage uploads.Storage) http.Handler {
	t.Helper()
	cfg := &config.AppConfig{Server: &config.ServerConfig{AllowedOrigins: []string{"*"}}}
	return newRouter(cfg, logging.Discard(), storage, routes{
		users:   echoHandler("users"),
		account: echoHandler("account"),
		posts:   echoHandler("posts"),
		events:  echoHandler("events"),
	})
}

func TestRouterMountsFeatureRoutes(t *testing.T) {
	router := testRouter(t, nil)

	for path, want := range map[string]string{
		"/api/v1/users/profile": "users",
		"/api/v1/auth/login":    "account",
		"/api/v1/posts/abc":     "posts",
		"/api/v1/events":        "events",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "API Not Found", body["message"])
}

func TestRouterServesLocalUploads(t *testing.T) {
	dir := t.TempDir()
	storage, err := uploads.NewLocalStorage(dir, "/uploads")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "image"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image", "a.txt"), []byte("hello"), 0o644))

	rec := httptest.NewRecorder()
	testRouter(t, storage).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/image/a.txt", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestCLICommands(t *testing.T) {
	app := newCLI()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"serve", "migrate", "seed-users"}, names)
	assert.NotNil(t, app.Action)
}
