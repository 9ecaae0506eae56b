package lgr

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestErrCarriesFrames(t *testing.T) {
	base := errors.New("boom")
	attr := Err(xerrors.Errorf("load labels: %w", base))
	assert.Equal(t, "error", attr.Key)

	msg := attr.Value.String()
	assert.Contains(t, msg, "load labels")
	assert.Contains(t, msg, "boom")
	assert.Contains(t, msg, "lgr_test.go:", "wrap site recorded")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Error("failed", Err(xerrors.Errorf("open: %w", base)))
	assert.Contains(t, buf.String(), "lgr_test.go:")

	assert.Equal(t, "boom", Err(base).Value.String())
	assert.Empty(t, Err(nil).Value.String())
}

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	prev := Logger
	Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	defer func() { Logger = prev }()

	r := gin.New()
	r.Use(GinLogger(func(*gin.Context) string { return "alice" }))
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"path":"/missing"`)
	assert.Contains(t, out, `"user":"alice"`)
	assert.Contains(t, out, `"status":404`)
}
