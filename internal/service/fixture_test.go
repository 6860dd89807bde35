package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/proctoring"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const bypassSchool = "SCH-20670E"

type fixture struct {
	db       *testutil.MemoryDB
	exams    *testutil.ExamStore
	sessions *testutil.SessionStore
	dir      *testutil.Directory
	ents     *testutil.Entitlements
	notifier *testutil.Notifier
	audit    *testutil.Audit
	records  *testutil.Records

	school  model.School
	teacher model.User
	student model.User

	examSvc      *service.ExamService
	sessionSvc   *service.SessionService
	violationSvc *service.ViolationService
	controlSvc   *service.ControlService
	gradingSvc   *service.GradingService
	monitorSvc   *service.MonitorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	f := &fixture{
		db:       testutil.NewMemoryDB(),
		dir:      testutil.NewDirectory(),
		ents:     testutil.NewEntitlements(),
		notifier: &testutil.Notifier{},
		audit:    &testutil.Audit{},
		records:  &testutil.Records{},
	}
	f.exams = f.db.Exams()
	f.sessions = f.db.Sessions()

	f.school = f.dir.AddSchool("Greenfield Academy", "SCH-GREEN1")
	f.teacher = f.dir.AddTeacher(f.school.ID, "Ada Teacher")
	f.student = f.dir.AddStudent(f.school.ID, "Bola Student", "JSS 2")

	f.examSvc = service.NewExamService(f.exams, f.dir, f.ents, f.notifier, f.audit, []string{bypassSchool}, log)
	f.sessionSvc = service.NewSessionService(f.exams, f.sessions, f.dir, f.records, f.notifier, f.audit, time.Minute, log)
	f.violationSvc = service.NewViolationService(f.exams, f.sessions, proctoring.NewPolicy(proctoring.DefaultTalkingThreshold), f.notifier, f.audit, log)
	f.controlSvc = service.NewControlService(f.exams, f.sessions, f.notifier, f.audit, log)
	f.gradingSvc = service.NewGradingService(f.exams, f.sessions, f.dir, f.audit, log)
	f.monitorSvc = service.NewMonitorService(f.exams, f.sessions, f.dir)
	return f
}

// sampleQuestions is worth 10 marks: mcq(2), true_false(1), fib(2), essay(5).
func sampleQuestions() []model.Question {
	return []model.Question{
		{Text: "2 + 2 = ?", Type: model.QuestionTypeMCQ, Options: []string{"3", "4", "5", "6"}, CorrectOptions: []int{1}, Marks: 2},
		{Text: "The sun is a star", Type: model.QuestionTypeTrueFalse, Options: []string{"True", "False"}, CorrectOptions: []int{0}, Marks: 1},
		{Text: "Capital of France", Type: model.QuestionTypeFIB, CorrectAnswer: "Paris", Marks: 2},
		{Text: "Describe photosynthesis", Type: model.QuestionTypeEssay, Marks: 5},
	}
}

// activeExam stores an active, visible exam owned by the fixture teacher.
func (f *fixture) activeExam(t *testing.T, mutate ...func(*model.Exam)) *model.Exam {
	t.Helper()
	e := &model.Exam{
		Title:             "Mid-term Science",
		Subject:           "Basic Science",
		TeacherID:         f.teacher.ID,
		SchoolID:          f.school.ID,
		DurationMinutes:   30,
		ClassLevel:        "JSS 2",
		Groups:            []string{},
		Questions:         sampleQuestions(),
		TotalMarks:        10,
		PassingPercentage: 50,
		NegativeMarking:   0.5,
		ExamType:          model.ExamTypeBasic,
		Status:            model.ExamStatusActive,
		IsActive:          true,
	}
	for _, m := range mutate {
		m(e)
	}
	require.NoError(t, f.exams.Create(context.Background(), e))
	return e
}

func (f *fixture) start(t *testing.T, exam *model.Exam) *service.SessionView {
	t.Helper()
	view, err := f.sessionSvc.StartSession(context.Background(), f.student.ID, exam.ID)
	require.NoError(t, err)
	return view
}

func raw(t *testing.T, answers map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(answers))
	for k, v := range answers {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out[k] = b
	}
	return out
}

func sessionRoom(id uuid.UUID) string { return "session:" + id.String() }
func examRoom(id uuid.UUID) string    { return "exam:" + id.String() }
func monitorRoom(id uuid.UUID) string { return "monitor:" + id.String() }
