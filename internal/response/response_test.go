package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_RequestIDInHeaderAndEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Trace())
	r.GET("/ping", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"caller id kept", "rq-7f3a-2026", true},
		{"missing id minted", "", false},
		{"oversized id replaced", strings.Repeat("a", 65), false},
		{"id with spaces replaced", "two words", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.inbound != "" {
				req.Header.Set(HeaderRequestID, tt.inbound)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			header := w.Header().Get(HeaderRequestID)
			if tt.keep {
				assert.Equal(t, tt.inbound, header)
			} else {
				_, err := uuid.Parse(header)
				assert.NoError(t, err)
			}

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, header, body.Metadata.RequestID)
		})
	}
}

func TestRequestID_StableWithoutTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	first := RequestID(c)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, RequestID(c))
	assert.Equal(t, first, buildMetadata(c).RequestID)
}
