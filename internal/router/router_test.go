package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/handler"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/proctoring"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/router"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/testutil"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/kicc/cbt-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type apiFixture struct {
	engine       *gin.Engine
	sessions     *testutil.SessionStore
	notifier     *testutil.Notifier
	teacherToken string
	studentToken string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		GinMode:             gin.TestMode,
		JWTSecret:           "router-test-secret",
		JWTExpiry:           time.Hour,
		BcryptCost:          4,
		ViolationRatePerMin: 3,
	}

	db := testutil.NewMemoryDB()
	exams, sessions := db.Exams(), db.Sessions()
	dir := testutil.NewDirectory()
	notifier := &testutil.Notifier{}
	audit := &testutil.Audit{}

	school := dir.AddSchool("Kings College", "SCH-KC0001")
	teacher := dir.AddTeacher(school.ID, "Mr Emeka Obi")
	student := dir.AddStudent(school.ID, "Ngozi Eze", "SS 1")

	authSvc := service.NewAuthService(cfg, dir)
	examSvc := service.NewExamService(exams, dir, testutil.NewEntitlements(), notifier, audit, nil, log)
	sessionSvc := service.NewSessionService(exams, sessions, dir, &testutil.Records{}, notifier, audit, time.Minute, log)
	violationSvc := service.NewViolationService(exams, sessions, proctoring.NewPolicy(proctoring.DefaultTalkingThreshold), notifier, audit, log)
	controlSvc := service.NewControlService(exams, sessions, notifier, audit, log)
	gradingSvc := service.NewGradingService(exams, sessions, dir, audit, log)
	monitorSvc := service.NewMonitorService(exams, sessions, dir)

	handlers := &router.Handlers{
		Auth:           handler.NewAuthHandler(authSvc, log),
		Exam:           handler.NewExamHandler(examSvc, monitorSvc, violationSvc, log),
		SessionControl: handler.NewSessionControlHandler(controlSvc, violationSvc, log),
		Grading:        handler.NewGradingHandler(gradingSvc, service.NewExportService(gradingSvc, log), log),
		StudentPortal:  handler.NewStudentPortalHandler(sessionSvc, violationSvc, log),
		Monitor:        handler.NewMonitorHandler(nil, monitorSvc, log),
		WS:             handler.NewWSHandler(websocket.NewHub(nil, log), monitorSvc, log, nil),
		System:         handler.NewSystemHandler(nil, nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &apiFixture{
		engine:   router.SetupRouter(ctx, authSvc, handlers, cfg),
		sessions: sessions,
		notifier: notifier,
	}

	var err error
	f.teacherToken, _, err = authSvc.GenerateToken(&teacher)
	require.NoError(t, err)
	f.studentToken, _, err = authSvc.GenerateToken(&student)
	require.NoError(t, err)
	return f
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (f *apiFixture) call(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (f *apiFixture) createActiveExam(t *testing.T) string {
	t.Helper()
	correct := 0
	status, env := f.call(t, http.MethodPost, "/api/v1/teacher/exams", f.teacherToken, model.CreateExamRequest{
		Title:           "First Term Chemistry",
		Subject:         "Chemistry",
		DurationMinutes: 40,
		ClassLevel:      "ss1",
		Questions: []model.QuestionInput{
			{Text: "H2O is water", Type: model.QuestionTypeTrueFalse, Options: []string{"True", "False"}, CorrectOption: &correct, Marks: 1},
			{Text: "Symbol for sodium", Type: model.QuestionTypeFIB, CorrectAnswer: "Na", Marks: 1},
		},
	})
	require.Equal(t, http.StatusCreated, status)

	var created struct {
		Exam model.Exam `json:"exam"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, model.ExamStatusScheduled, created.Exam.Status)
	id := created.Exam.ID.String()

	active, on := model.ExamStatusActive, true
	status, _ = f.call(t, http.MethodPatch, "/api/v1/teacher/exams/"+id+"/status", f.teacherToken,
		model.SetExamStatusRequest{Status: &active, IsActive: &on})
	require.Equal(t, http.StatusOK, status)
	return id
}

func (f *apiFixture) startSession(t *testing.T, examID string) string {
	t.Helper()
	status, env := f.call(t, http.MethodPost, "/api/v1/student/exams/"+examID+"/start", f.studentToken, nil)
	require.Equal(t, http.StatusCreated, status)

	var view struct {
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view.Session.ID.String()
}

func TestRouter_AuthAndRoleGuards(t *testing.T) {
	f := newAPI(t)

	status, env := f.call(t, http.MethodGet, "/api/v1/teacher/exams", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrTokenRequired, env.Error.Code)

	status, env = f.call(t, http.MethodGet, "/api/v1/teacher/exams", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, response.ErrTokenInvalid, env.Error.Code)

	status, env = f.call(t, http.MethodGet, "/api/v1/teacher/exams", f.studentToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.ErrTeacherAccessOnly, env.Error.Code)

	status, env = f.call(t, http.MethodGet, "/api/v1/student/exams", f.teacherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.ErrStudentAccessOnly, env.Error.Code)
}

func TestRouter_CreateExamValidation(t *testing.T) {
	f := newAPI(t)

	status, env := f.call(t, http.MethodPost, "/api/v1/teacher/exams", f.teacherToken, map[string]any{
		"title":            "   ",
		"subject":          "Physics",
		"duration_minutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrValidation, env.Error.Code)
	assert.Contains(t, env.Error.Fields, "title")
	assert.Contains(t, env.Error.Fields, "questions")
}

func TestRouter_StudentFlow(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	status, _ := f.call(t, http.MethodPost, "/api/v1/student/exams/"+examID+"/start", f.studentToken, nil)
	assert.Equal(t, http.StatusOK, status, "second start resumes the session")

	status, env := f.call(t, http.MethodPut, "/api/v1/student/sessions/"+sessionID+"/answers", f.studentToken,
		map[string]any{"answers": map[string]any{"0": 0}})
	require.Equal(t, http.StatusOK, status)
	var saved struct {
		AnsweredCount int `json:"answered_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, 1, saved.AnsweredCount)

	status, env = f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken,
		map[string]any{"answers": map[string]any{"1": " na "}})
	require.Equal(t, http.StatusOK, status)
	var submitted struct {
		Session model.Session `json:"session"`
		Passed  bool          `json:"passed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	assert.Equal(t, model.SessionStatusCompleted, submitted.Session.Status)
	assert.Equal(t, float64(2), submitted.Session.Score)
	assert.True(t, submitted.Passed)

	status, env = f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, response.ErrSessionFinal, env.Error.Code)

	status, env = f.call(t, http.MethodPost, "/api/v1/student/exams/"+examID+"/start", f.studentToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, response.ErrAlreadyTaken, env.Error.Code)
	assert.Contains(t, string(env.Data), sessionID)
}

func TestRouter_LockedSessionRejectsSubmit(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	status, env := f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/violations", f.studentToken,
		model.LogViolationRequest{Type: "tab_switch"})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, string(env.Data), `"is_locked":true`)

	status, env = f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken, nil)
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, response.ErrSessionLocked, env.Error.Code)

	status, _ = f.call(t, http.MethodPost, "/api/v1/teacher/sessions/"+sessionID+"/unlock", f.teacherToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_ViolationRateLimit(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	path := "/api/v1/student/sessions/" + sessionID + "/violations"
	for i := 0; i < 3; i++ {
		status, _ := f.call(t, http.MethodPost, path, f.studentToken, model.LogViolationRequest{Type: "looking_away"})
		require.Equal(t, http.StatusCreated, status)
	}

	status, env := f.call(t, http.MethodPost, path, f.studentToken, model.LogViolationRequest{Type: "looking_away"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, response.ErrRateLimitExceeded, env.Error.Code)
}

func TestRouter_EndExamTerminatesSessions(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	ended := model.ExamStatusEnded
	status, _ := f.call(t, http.MethodPatch, "/api/v1/teacher/exams/"+examID+"/status", f.teacherToken,
		model.SetExamStatusRequest{Status: &ended})
	require.Equal(t, http.StatusOK, status)

	status, env := f.call(t, http.MethodGet, "/api/v1/student/sessions/"+sessionID, f.studentToken, nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.SessionStatusTerminated, view.Session.Status)
	assert.True(t, f.notifier.Has("exam:"+examID, model.EventExamTerminated))

	active := model.ExamStatusActive
	status, env = f.call(t, http.MethodPatch, "/api/v1/teacher/exams/"+examID+"/status", f.teacherToken,
		model.SetExamStatusRequest{Status: &active})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, response.ErrExamEnded, env.Error.Code)
}

func TestRouter_ExportResultsIsWorkbook(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	status, _ := f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken, nil)
	require.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/teacher/exams/"+examID+"/results/export", nil)
	req.Header.Set("Authorization", "Bearer "+f.teacherToken)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, []byte("PK"), w.Body.Bytes()[:2])
}

func TestRouter_ForceSubmitCompletedReturnsRecord(t *testing.T) {
	f := newAPI(t)
	examID := f.createActiveExam(t)
	sessionID := f.startSession(t, examID)

	status, _ := f.call(t, http.MethodPost, "/api/v1/student/sessions/"+sessionID+"/submit", f.studentToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := f.call(t, http.MethodPost, "/api/v1/teacher/sessions/"+sessionID+"/force-submit", f.teacherToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrSessionFinal, env.Error.Code)

	var body struct {
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, sessionID, body.Session.ID.String())
	assert.Equal(t, model.SessionStatusCompleted, body.Session.Status)
}
