package service_test

import (
	"context"
	"testing"

	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRequest(examType model.ExamType) *model.CreateExamRequest {
	correct := 1
	return &model.CreateExamRequest{
		Title:           "Weekly Quiz",
		Subject:         "Mathematics",
		DurationMinutes: 20,
		ClassLevel:      "JSS 2",
		ExamType:        examType,
		Questions: []model.QuestionInput{
			{Text: "1 + 1 = ?", Options: []string{"1", "2", "3"}, CorrectOption: &correct, Marks: 2},
			{Text: "Water boils at 100C at sea level", Type: model.QuestionTypeTrueFalse, CorrectOptions: []int{0}, Marks: 1},
			{Text: "Explain gravity", Type: model.QuestionTypeEssay, Marks: 3},
		},
	}
}

func TestCreateExam_AppliesDefaults(t *testing.T) {
	f := newFixture(t)

	exam, err := f.examSvc.CreateExam(context.Background(), f.teacher.ID, createRequest(""))
	require.NoError(t, err)

	assert.Equal(t, model.ExamStatusScheduled, exam.Status)
	assert.False(t, exam.IsActive)
	assert.Equal(t, model.ExamTypeBasic, exam.ExamType)
	assert.Equal(t, f.school.ID, exam.SchoolID)
	assert.Equal(t, float64(6), exam.TotalMarks)
	assert.Equal(t, float64(model.DefaultPassingPercentage), exam.PassingPercentage)
	assert.Equal(t, []int{1}, exam.Questions[0].CorrectOptions, "legacy correct_option is converted")
	assert.Equal(t, []string{"True", "False"}, exam.Questions[1].Options)
	assert.Nil(t, exam.Questions[2].Options)
	assert.Contains(t, f.audit.Actions(), model.ActionExamCreated)
}

func TestCreateExam_RejectsInvalidQuestions(t *testing.T) {
	f := newFixture(t)
	req := createRequest("")
	req.Questions[0].Options = []string{"only one"}
	req.Questions[0].CorrectOption = nil

	_, err := f.examSvc.CreateExam(context.Background(), f.teacher.ID, req)
	require.ErrorIs(t, err, service.ErrInvalidExam)

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "questions[0]")
}

func TestCreateExam_ProctoredNeedsEntitlement(t *testing.T) {
	f := newFixture(t)

	_, err := f.examSvc.CreateExam(context.Background(), f.teacher.ID, createRequest(model.ExamTypeProctored))
	assert.ErrorIs(t, err, service.ErrFeatureNotPermitted)

	f.ents.Grant(f.school.ID)
	exam, err := f.examSvc.CreateExam(context.Background(), f.teacher.ID, createRequest(model.ExamTypeProctored))
	require.NoError(t, err)
	assert.Equal(t, model.ExamTypeProctored, exam.ExamType)
}

func TestCreateExam_BypassSchool(t *testing.T) {
	f := newFixture(t)
	school := f.dir.AddSchool("Pilot School", bypassSchool)
	teacher := f.dir.AddTeacher(school.ID, "Pilot Teacher")

	exam, err := f.examSvc.CreateExam(context.Background(), teacher.ID, createRequest(model.ExamTypeProctored))
	require.NoError(t, err)
	assert.Equal(t, model.ExamTypeProctored, exam.ExamType)
}

func TestCreateExam_StudentCannotCreate(t *testing.T) {
	f := newFixture(t)
	_, err := f.examSvc.CreateExam(context.Background(), f.student.ID, createRequest(""))
	assert.ErrorIs(t, err, service.ErrNotExamOwner)
}

func TestExamOwnership(t *testing.T) {
	f := newFixture(t)
	exam := f.activeExam(t)
	other := f.dir.AddTeacher(f.school.ID, "Other Teacher")

	_, err := f.examSvc.GetExam(context.Background(), other.ID, exam.ID)
	assert.ErrorIs(t, err, service.ErrNotExamOwner)

	active := model.ExamStatusEnded
	_, err = f.examSvc.SetStatus(context.Background(), other.ID, exam.ID, &model.SetExamStatusRequest{Status: &active})
	assert.ErrorIs(t, err, service.ErrNotExamOwner)
}

func TestSetStatus_Transitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam, err := f.examSvc.CreateExam(ctx, f.teacher.ID, createRequest(""))
	require.NoError(t, err)

	active, on := model.ExamStatusActive, true
	got, err := f.examSvc.SetStatus(ctx, f.teacher.ID, exam.ID, &model.SetExamStatusRequest{Status: &active, IsActive: &on})
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusActive, got.Status)
	assert.True(t, got.IsActive)
	assert.Contains(t, f.audit.Actions(), model.ActionExamStarted)

	scheduled := model.ExamStatusScheduled
	_, err = f.examSvc.SetStatus(ctx, f.teacher.ID, exam.ID, &model.SetExamStatusRequest{Status: &scheduled})
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = f.examSvc.UpdateExam(ctx, f.teacher.ID, exam.ID, createRequest(""))
	assert.ErrorIs(t, err, service.ErrExamNotEditable)
	assert.ErrorIs(t, f.examSvc.DeleteExam(ctx, f.teacher.ID, exam.ID), service.ErrExamNotEditable)
}

func TestSetStatus_EndCascadesToSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)

	ongoing := f.start(t, exam)

	finisher := f.dir.AddStudent(f.school.ID, "Chidi Done", "JSS 2")
	done, err := f.sessionSvc.StartSession(ctx, finisher.ID, exam.ID)
	require.NoError(t, err)
	_, err = f.sessionSvc.SubmitExam(ctx, finisher.ID, done.Session.ID, nil)
	require.NoError(t, err)

	ended := model.ExamStatusEnded
	got, err := f.examSvc.SetStatus(ctx, f.teacher.ID, exam.ID, &model.SetExamStatusRequest{Status: &ended})
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusEnded, got.Status)
	assert.False(t, got.IsActive)

	sess, err := f.sessions.GetByID(ctx, ongoing.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusTerminated, sess.Status)
	assert.NotNil(t, sess.EndTime)

	completed, err := f.sessions.GetByID(ctx, done.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, completed.Status, "finished sessions are untouched")

	assert.True(t, f.notifier.Has(examRoom(exam.ID), model.EventExamTerminated))
	assert.True(t, f.notifier.Has(sessionRoom(ongoing.Session.ID), model.EventSessionTerminated))
	assert.False(t, f.notifier.Has(sessionRoom(done.Session.ID), model.EventSessionTerminated))
	assert.Contains(t, f.audit.Actions(), model.ActionExamEnded)
}

func TestSetStatus_EndedIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)

	ended := model.ExamStatusEnded
	_, err := f.examSvc.SetStatus(ctx, f.teacher.ID, exam.ID, &model.SetExamStatusRequest{Status: &ended})
	require.NoError(t, err)

	active, on := model.ExamStatusActive, true
	_, err = f.examSvc.SetStatus(ctx, f.teacher.ID, exam.ID, &model.SetExamStatusRequest{Status: &active, IsActive: &on})
	assert.ErrorIs(t, err, service.ErrExamEnded)

	_, err = f.sessionSvc.StartSession(ctx, f.student.ID, exam.ID)
	assert.ErrorIs(t, err, service.ErrExamNotAvailable)
}

func TestDeleteExam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam, err := f.examSvc.CreateExam(ctx, f.teacher.ID, createRequest(""))
	require.NoError(t, err)

	require.NoError(t, f.examSvc.DeleteExam(ctx, f.teacher.ID, exam.ID))
	_, err = f.examSvc.GetExam(ctx, f.teacher.ID, exam.ID)
	assert.ErrorIs(t, err, service.ErrExamNotFound)
}
