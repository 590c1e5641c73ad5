package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/bandexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bind(body string, dst any) map[string]string {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindManualScore(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"valid", `{"skill":"writing","band":6.5}`, ""},
		{"off grid", `{"skill":"writing","band":6.3}`, "band"},
		{"above range", `{"skill":"speaking","band":9.5}`, "band"},
		{"auto scored skill", `{"skill":"reading","band":7}`, "skill"},
		{"missing band", `{"skill":"writing"}`, "band"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req model.ManualScoreRequest
			fields := bind(tt.body, &req)
			if tt.field == "" {
				assert.Nil(t, fields)
				return
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestBindTranslatesBandMessage(t *testing.T) {
	var req model.ManualScoreRequest
	fields := bind(`{"skill":"writing","band":4.2}`, &req)
	assert.Equal(t, "band must be a band between 1 and 9 in 0.5 steps", fields["band"])
}

func TestBindReportsSyntaxErrors(t *testing.T) {
	var req model.ReportEventRequest
	fields := bind(`{"kind":`, &req)
	assert.Contains(t, fields, "detail")
}

func TestBindRejectsSlashInAnswerIDs(t *testing.T) {
	var req model.SaveProgressRequest
	fields := bind(`{"answers":[{"skill":"reading","section_id":"r1/q1","question_id":"x","value":"a"}]}`, &req)
	assert.Contains(t, fields, "section_id")

	req = model.SaveProgressRequest{}
	assert.Nil(t, bind(`{"answers":[{"skill":"reading","section_id":"r1","question_id":"q1","value":"a"}]}`, &req))
}
