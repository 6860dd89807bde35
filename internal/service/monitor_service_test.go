package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.activeExam(t)
	view := f.start(t, exam)
	sessionID := view.Session.ID

	otherTeacher := f.dir.AddTeacher(f.school.ID, "Tunde Other")
	otherStudent := f.dir.AddStudent(f.school.ID, "Kemi Other", "JSS 2")

	tests := []struct {
		name    string
		userID  uuid.UUID
		role    model.Role
		kind    service.RoomKind
		id      uuid.UUID
		want    string
		wantErr error
	}{
		{"student joins own session", f.student.ID, model.RoleStudent, service.RoomSession, sessionID, "session:" + sessionID.String(), nil},
		{"student joins exam they sat", f.student.ID, model.RoleStudent, service.RoomExam, exam.ID, "exam:" + exam.ID.String(), nil},
		{"owner joins monitor", f.teacher.ID, model.RoleTeacher, service.RoomMonitor, exam.ID, "monitor:" + exam.ID.String(), nil},
		{"owner joins a session of their exam", f.teacher.ID, model.RoleTeacher, service.RoomSession, sessionID, "session:" + sessionID.String(), nil},
		{"other student session", otherStudent.ID, model.RoleStudent, service.RoomSession, sessionID, "", service.ErrNotSessionOwner},
		{"student without session", otherStudent.ID, model.RoleStudent, service.RoomExam, exam.ID, "", service.ErrSessionNotFound},
		{"student monitor", f.student.ID, model.RoleStudent, service.RoomMonitor, exam.ID, "", service.ErrNotExamOwner},
		{"other teacher monitor", otherTeacher.ID, model.RoleTeacher, service.RoomMonitor, exam.ID, "", service.ErrNotExamOwner},
		{"unknown session", f.teacher.ID, model.RoleTeacher, service.RoomSession, uuid.New(), "", service.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := f.monitorSvc.AuthorizeRoom(ctx, tt.userID, tt.role, tt.kind, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, room)
		})
	}
}
