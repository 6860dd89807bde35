package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSession_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)

	first := f.start(t, exam)
	second := f.start(t, exam)

	assert.False(t, first.Resumed)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Positive(t, second.RemainingSeconds)
	assert.Len(t, second.Exam.Questions, len(exam.Questions))

	starts := 0
	for _, a := range f.audit.Actions() {
		if a == model.ActionSessionStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
	assert.True(t, f.notifier.Has(monitorRoom(exam.ID), model.EventSessionStarted))
}

func TestStartSession_ConcurrentStartsShareOneSession(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := f.sessionSvc.StartSession(context.Background(), f.student.ID, exam.ID)
			if assert.NoError(t, err) {
				ids[i] = view.Session.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	sessions, err := f.sessions.ListByExam(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestStartSession_NoRetake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)

	view := f.start(t, exam)
	_, err := f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, nil)
	require.NoError(t, err)

	_, err = f.sessionSvc.StartSession(ctx, f.student.ID, exam.ID)
	require.ErrorIs(t, err, service.ErrAlreadyTaken)

	var conflict *service.SessionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, view.Session.ID, conflict.Session.ID)
	assert.Equal(t, model.SessionStatusCompleted, conflict.Session.Status)
}

func TestStartSession_Admission(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*model.Exam)
		student func(f *fixture) model.User
		wantErr error
	}{
		{
			name:    "inactive exam",
			mutate:  func(e *model.Exam) { e.IsActive = false },
			wantErr: service.ErrExamNotAvailable,
		},
		{
			name:    "not started by teacher",
			mutate:  func(e *model.Exam) { e.Status = model.ExamStatusScheduled },
			wantErr: service.ErrExamNotStarted,
		},
		{
			name: "student of another school",
			student: func(f *fixture) model.User {
				other := f.dir.AddSchool("Riverside College", "SCH-RIVER1")
				return f.dir.AddStudent(other.ID, "Dayo Outsider", "JSS 2")
			},
			wantErr: service.ErrDifferentSchool,
		},
		{
			name: "different class level",
			student: func(f *fixture) model.User {
				return f.dir.AddStudent(f.school.ID, "Efe Senior", "SS 1")
			},
			wantErr: service.ErrNotEligible,
		},
		{
			name:   "group not targeted",
			mutate: func(e *model.Exam) { e.Groups = []string{"A"} },
			student: func(f *fixture) model.User {
				return f.dir.AddUser(model.User{SchoolID: f.school.ID, Role: model.RoleStudent, FullName: "Funmi B", ClassLevel: "jss2", Group: "B"})
			},
			wantErr: service.ErrNotEligible,
		},
		{
			name: "window closed",
			mutate: func(e *model.Exam) {
				past := time.Now().Add(-time.Hour)
				e.EndsAt = &past
			},
			wantErr: service.ErrExamNotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutate []func(*model.Exam)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			exam := f.activeExam(t, mutate...)
			student := f.student
			if tt.student != nil {
				student = tt.student(f)
			}

			_, err := f.sessionSvc.StartSession(ctx, student.ID, exam.ID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStartSession_ClassLevelMatchIsLoose(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)
	student := f.dir.AddStudent(f.school.ID, "Gbenga Loose", "jss2")

	_, err := f.sessionSvc.StartSession(context.Background(), student.ID, exam.ID)
	assert.NoError(t, err)
}

func TestSubmitExam_ScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)

	res, err := f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{
		"0": 0,         // wrong: -0.5
		"1": 0,         // correct: +1
		"2": " paris ", // correct: +2
	}))
	require.NoError(t, err)

	assert.InDelta(t, 2.5, res.Result.TotalScore, 1e-9)
	assert.InDelta(t, 25.0, res.Result.Percentage, 1e-9)
	assert.Equal(t, 2, res.Result.CorrectCount)
	assert.Equal(t, 1, res.Result.WrongCount)
	assert.False(t, res.Passed)

	stored, err := f.sessions.GetByID(ctx, view.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.EndTime)
	assert.InDelta(t, 2.5, stored.Score, 1e-9)

	scores := f.records.Scores()
	require.Len(t, scores, 1)
	assert.Equal(t, "basicscience", scores[0].SubjectKey)
	assert.Equal(t, f.student.ID.String(), scores[0].StudentID)

	assert.True(t, f.notifier.Has(monitorRoom(exam.ID), model.EventSessionSubmitted))
	assert.Contains(t, f.audit.Actions(), model.ActionExamSubmit)
}

func TestSubmitExam_RejectsResubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)

	_, err := f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{"0": 1}))
	require.NoError(t, err)

	_, err = f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{"1": 0, "2": "Paris"}))
	assert.ErrorIs(t, err, service.ErrSessionFinal)

	stored, err := f.sessions.GetByID(ctx, view.Session.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, stored.Score, 1e-9, "score of the first submission stands")
}

func TestSubmitExam_SyncFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	f.records.Err = assert.AnError
	exam := f.activeExam(t)
	view := f.start(t, exam)

	_, err := f.sessionSvc.SubmitExam(context.Background(), f.student.ID, view.Session.ID, nil)
	assert.NoError(t, err)
}

func TestSaveAnswers_MergesWithSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)

	saved, err := f.sessionSvc.SaveAnswers(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{"0": 1, "2": "London"}))
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Answers.AnsweredCount())

	res, err := f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{"2": "Paris"}))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Result.TotalScore, 1e-9)
	assert.Equal(t, model.Text("Paris"), res.Session.Answers[2])
}

func TestSaveAnswers_RejectsBadAnswers(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)

	_, err := f.sessionSvc.SaveAnswers(context.Background(), f.student.ID, view.Session.ID, raw(t, map[string]any{"9": 1}))
	var aerr *model.AnswerError
	assert.ErrorAs(t, err, &aerr)
}

func TestSession_LockedRejectsInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)

	_, err := f.controlSvc.LockSession(ctx, f.teacher.ID, view.Session.ID, "")
	require.NoError(t, err)

	_, err = f.sessionSvc.SaveAnswers(ctx, f.student.ID, view.Session.ID, raw(t, map[string]any{"0": 1}))
	assert.ErrorIs(t, err, service.ErrSessionLocked)
	_, err = f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, nil)
	assert.ErrorIs(t, err, service.ErrSessionLocked)
}

func TestSession_OtherStudentIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)
	intruder := f.dir.AddStudent(f.school.ID, "Hauwa Intruder", "JSS 2")

	_, err := f.sessionSvc.GetSessionState(ctx, intruder.ID, view.Session.ID)
	assert.ErrorIs(t, err, service.ErrNotSessionOwner)
	_, err = f.sessionSvc.SubmitExam(ctx, intruder.ID, view.Session.ID, nil)
	assert.ErrorIs(t, err, service.ErrNotSessionOwner)
}

func (f *fixture) putSession(t *testing.T, exam *model.Exam, startedAgo time.Duration) model.Session {
	t.Helper()
	sess := model.Session{
		ID:           uuid.New(),
		ExamID:       exam.ID,
		StudentID:    f.student.ID,
		StartTime:    time.Now().Add(-startedAgo),
		Answers:      model.Answers{0: model.McqSingle(1)},
		Violations:   []model.Violation{},
		ManualGrades: map[int]float64{},
		Status:       model.SessionStatusOngoing,
	}
	f.sessions.Put(sess)
	return sess
}

func TestSaveAnswers_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)
	sess := f.putSession(t, exam, 45*time.Minute)

	_, err := f.sessionSvc.SaveAnswers(context.Background(), f.student.ID, sess.ID, raw(t, map[string]any{"1": 0}))
	assert.ErrorIs(t, err, service.ErrTimeUp)
}

func TestExpireSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	sess := f.putSession(t, exam, 45*time.Minute)

	overdue, err := f.sessions.ListOverdue(ctx, time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sess.ID}, overdue)

	expired, err := f.sessionSvc.ExpireSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	stored, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, stored.Status)
	assert.InDelta(t, 2.0, stored.Score, 1e-9)
	assert.True(t, f.notifier.Has(sessionRoom(sess.ID), model.EventSessionTimeUp))
	assert.Contains(t, f.audit.Actions(), model.ActionExamAutoSubmit)

	again, err := f.sessionSvc.ExpireSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestExpireSession_SkipsSessionsWithTimeLeft(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)
	sess := f.putSession(t, exam, 5*time.Minute)

	expired, err := f.sessionSvc.ExpireSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestListStudentExams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	f.activeExam(t, func(e *model.Exam) { e.ClassLevel = "SS 3"; e.Title = "Senior paper" })

	list, err := f.sessionSvc.ListStudentExams(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, exam.ID, list[0].ID)
	assert.True(t, list[0].CanStart)
	assert.Nil(t, list[0].SessionID)

	view := f.start(t, exam)
	_, err = f.sessionSvc.SubmitExam(ctx, f.student.ID, view.Session.ID, nil)
	require.NoError(t, err)

	list, err = f.sessionSvc.ListStudentExams(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].CanStart)
	require.NotNil(t, list[0].SessionStatus)
	assert.Equal(t, model.SessionStatusCompleted, *list[0].SessionStatus)

	results, err := f.sessionSvc.StudentResults(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, exam.Title, results[0].Title)
}

// endingExamStore ends the exam right after the first read of it, as a
// teacher ending the exam while a student is being admitted would.
type endingExamStore struct {
	*testutil.ExamStore
	once sync.Once
}

func (s *endingExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.ExamStore.GetByID(ctx, id)
	if err == nil {
		s.once.Do(func() { _, _ = s.ExamStore.End(ctx, id, time.Now()) })
	}
	return exam, err
}

func TestStartSession_ExamEndedDuringAdmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)

	exams := &endingExamStore{ExamStore: f.exams}
	svc := service.NewSessionService(exams, f.sessions, f.dir, f.records, f.notifier, f.audit, time.Minute, zerolog.Nop())

	_, err := svc.StartSession(ctx, f.student.ID, exam.ID)
	require.ErrorIs(t, err, service.ErrExamNotAvailable)

	ended, err := f.exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusEnded, ended.Status)

	sessions, err := f.sessions.ListByExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session may open inside an ended exam")
}
