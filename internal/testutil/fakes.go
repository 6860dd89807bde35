package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
)

// Directory is an in-memory service.UserDirectory.
type Directory struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]model.User
	schools map[uuid.UUID]model.School
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users:   make(map[uuid.UUID]model.User),
		schools: make(map[uuid.UUID]model.School),
	}
}

// AddSchool registers a school and returns it.
func (d *Directory) AddSchool(name, loginID string) model.School {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := model.School{ID: uuid.New(), Name: name, LoginID: loginID}
	d.schools[s.ID] = s
	return s
}

// AddUser registers a user, assigning an ID when missing.
func (d *Directory) AddUser(u model.User) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	d.users[u.ID] = u
	return u
}

// AddTeacher registers a teacher of schoolID.
func (d *Directory) AddTeacher(schoolID uuid.UUID, name string) model.User {
	return d.AddUser(model.User{
		SchoolID: schoolID,
		Role:     model.RoleTeacher,
		FullName: name,
		Username: strings.ToLower(strings.ReplaceAll(name, " ", ".")),
	})
}

// AddStudent registers a student of schoolID in classLevel.
func (d *Directory) AddStudent(schoolID uuid.UUID, name, classLevel string) model.User {
	return d.AddUser(model.User{
		SchoolID:   schoolID,
		Role:       model.RoleStudent,
		FullName:   name,
		Username:   strings.ToLower(strings.ReplaceAll(name, " ", ".")),
		ClassLevel: classLevel,
	})
}

func (d *Directory) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (d *Directory) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (d *Directory) GetSchool(_ context.Context, id uuid.UUID) (*model.School, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.schools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (d *Directory) ListStudents(_ context.Context, schoolID uuid.UUID) ([]model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, 0)
	for _, u := range d.users {
		if u.SchoolID == schoolID && u.Role == model.RoleStudent {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (d *Directory) ListUsersByID(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uuid.UUID]model.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// Entitlements is a service.EntitlementChecker backed by a set of schools.
type Entitlements struct {
	mu      sync.Mutex
	schools map[uuid.UUID]bool
	Err     error
}

// NewEntitlements creates a checker that grants proctoring to the given schools.
func NewEntitlements(schools ...uuid.UUID) *Entitlements {
	e := &Entitlements{schools: make(map[uuid.UUID]bool)}
	for _, id := range schools {
		e.schools[id] = true
	}
	return e
}

// Grant enables proctored exams for schoolID.
func (e *Entitlements) Grant(schoolID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schools[schoolID] = true
}

func (e *Entitlements) HasProctoredExams(_ context.Context, schoolID uuid.UUID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return false, e.Err
	}
	return e.schools[schoolID], nil
}

// Published is one captured notification.
type Published struct {
	Room         string
	Notification model.Notification
}

// Notifier records every published notification.
type Notifier struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (n *Notifier) Publish(_ context.Context, room string, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Published{Room: room, Notification: msg})
	return n.Err
}

// Events returns the notifications published to room, in order.
func (n *Notifier) Events(room string) []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for _, p := range n.events {
		if p.Room == room {
			out = append(out, p.Notification)
		}
	}
	return out
}

// Has reports whether event was published to room.
func (n *Notifier) Has(room string, event model.NotificationEvent) bool {
	for _, e := range n.Events(room) {
		if e.Event == event {
			return true
		}
	}
	return false
}

// Audit records audit entries.
type Audit struct {
	mu      sync.Mutex
	entries []model.ActivityLog
}

func (a *Audit) Record(_ context.Context, entry model.ActivityLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// Actions returns the recorded actions in order.
func (a *Audit) Actions() []model.ActivityAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.ActivityAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// Entries returns a copy of the recorded entries.
func (a *Audit) Entries() []model.ActivityLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ActivityLog(nil), a.entries...)
}

// Records captures synced subject scores.
type Records struct {
	mu     sync.Mutex
	scores []model.SubjectScore
	Err    error
}

func (r *Records) SyncSubjectScore(_ context.Context, score model.SubjectScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.scores = append(r.scores, score)
	return nil
}

// Scores returns the synced scores.
func (r *Records) Scores() []model.SubjectScore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SubjectScore(nil), r.scores...)
}
