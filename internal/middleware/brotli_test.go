package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrotli_CompressesLargeJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	body := strings.Repeat(`{"question":"Which planet is largest?"},`, 100)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/api/v1/student/exams", func(c *gin.Context) { c.String(http.StatusOK, body) })
	r.GET("/api/v1/teacher/exams/1/results/export", func(c *gin.Context) { c.String(http.StatusOK, body) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/student/exams", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/teacher/exams/1/results/export", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w.Body.String())
}

func TestBrotli_PlainWhenRefusedOrSmall(t *testing.T) {
	gin.SetMode(gin.TestMode)
	large := strings.Repeat("x", 4096)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		want           string
	}{
		{"br with zero weight", "/large", "gzip, br;q=0", large},
		{"br not offered", "/large", "gzip", large},
		{"body under threshold", "/small", "br", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestBrotli_FlushBeforeThresholdSendsPlain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/stream", func(c *gin.Context) {
		c.Status(http.StatusOK)
		_, _ = c.Writer.WriteString("tick\n")
		c.Writer.Flush()
		_, _ = c.Writer.WriteString(strings.Repeat("tock\n", 400))
	})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "tick\n"+strings.Repeat("tock\n", 400), w.Body.String())
}

func TestWantsBrotli(t *testing.T) {
	assert.True(t, wantsBrotli("br"))
	assert.True(t, wantsBrotli("gzip, BR;q=0.5"))
	assert.False(t, wantsBrotli("br;q=0"))
	assert.False(t, wantsBrotli("gzip, deflate"))
	assert.False(t, wantsBrotli(""))
}
