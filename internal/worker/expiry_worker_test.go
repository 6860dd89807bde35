package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/testutil"
	"github.com/kicc/cbt-backend/internal/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryWorker_SweepOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewMemoryDB()
	dir := testutil.NewDirectory()
	school := dir.AddSchool("Greenfield Academy", "SCH-GREEN1")
	teacher := dir.AddTeacher(school.ID, "Ada Teacher")
	student := dir.AddStudent(school.ID, "Bola Student", "JSS 2")

	exam := &model.Exam{
		Title:           "Quiz",
		Subject:         "English",
		TeacherID:       teacher.ID,
		SchoolID:        school.ID,
		DurationMinutes: 10,
		Questions: []model.Question{
			{Text: "Pick B", Type: model.QuestionTypeMCQ, Options: []string{"A", "B"}, CorrectOptions: []int{1}, Marks: 1},
		},
		Status:   model.ExamStatusActive,
		IsActive: true,
	}
	require.NoError(t, db.Exams().Create(ctx, exam))

	put := func(ago time.Duration) uuid.UUID {
		s := model.Session{
			ID:        uuid.New(),
			ExamID:    exam.ID,
			StudentID: student.ID,
			StartTime: time.Now().Add(-ago),
			Answers:   model.Answers{0: model.McqSingle(1)},
			Status:    model.SessionStatusOngoing,
		}
		db.Sessions().Put(s)
		return s.ID
	}
	overdue := put(20 * time.Minute)
	fresh := put(2 * time.Minute)

	notifier := &testutil.Notifier{}
	svc := service.NewSessionService(db.Exams(), db.Sessions(), dir, nil, notifier, &testutil.Audit{}, time.Minute, zerolog.Nop())
	w := worker.NewExpiryWorker(db.Sessions(), svc, nil, time.Second, time.Minute, zerolog.Nop())

	n, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.Sessions().GetByID(ctx, overdue)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)
	assert.InDelta(t, 1.0, got.Score, 1e-9)

	got, err = db.Sessions().GetByID(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusOngoing, got.Status)

	n, err = w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
