package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type sampleQuestion struct {
	Text string `json:"text" binding:"required,notblank"`
}

type sampleRequest struct {
	Title     string           `json:"title" binding:"required,notblank,min=3"`
	Questions []sampleQuestion `json:"questions" binding:"required,min=1,dive"`
}

func bind(t *testing.T, body string) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req sampleRequest
	return Bind(c, &req)
}

func TestBind(t *testing.T) {
	Setup()

	assert.Nil(t, bind(t, `{"title":"Algebra","questions":[{"text":"1+1?"}]}`))

	fields := bind(t, `{"title":"   ","questions":[{"text":"ok"},{"text":"  "}]}`)
	assert.Equal(t, "title must not be blank", fields["title"])
	assert.Equal(t, "text must not be blank", fields["questions[1].text"])

	fields = bind(t, `{"title":`)
	assert.Contains(t, fields, "detail")
}
