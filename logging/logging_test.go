package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/postboard-go/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&config.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
}

func TestRequestLoggerWritesOneEntry(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	h := middleware.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/posts/42", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/posts/42", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, float64(4), entry["bytes"])
	assert.Equal(t, logrus.WarnLevel.String(), entry["level"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestFromContextFallsBackToStandardLogger(t *testing.T) {
	assert.Equal(t, logrus.StandardLogger(), FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))

	logger := Discard()
	ctx := WithLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
