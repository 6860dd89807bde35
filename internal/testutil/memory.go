// Package testutil provides in-memory implementations of the service ports.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
)

// MemoryDB holds exams and sessions behind one mutex so exam ending and
// session mutation see a consistent view.
type MemoryDB struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]model.Exam
	sessions map[uuid.UUID]model.Session
}

// NewMemoryDB creates an empty database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		exams:    make(map[uuid.UUID]model.Exam),
		sessions: make(map[uuid.UUID]model.Session),
	}
}

// Exams returns the ExamStore view of the database.
func (db *MemoryDB) Exams() *ExamStore { return &ExamStore{db: db} }

// Sessions returns the SessionStore view of the database.
func (db *MemoryDB) Sessions() *SessionStore { return &SessionStore{db: db} }

// ExamStore is an in-memory service.ExamStore.
type ExamStore struct{ db *MemoryDB }

func (s *ExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneExam(e), nil
}

func (s *ExamStore) Create(_ context.Context, exam *model.Exam) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if exam.ID == uuid.Nil {
		exam.ID = uuid.New()
	}
	if _, ok := s.db.exams[exam.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now()
	exam.CreatedAt, exam.UpdatedAt = now, now
	s.db.exams[exam.ID] = *cloneExam(*exam)
	return nil
}

func (s *ExamStore) Update(_ context.Context, exam *model.Exam) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.exams[exam.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != model.ExamStatusScheduled {
		return repository.ErrConflict
	}
	exam.UpdatedAt = time.Now()
	s.db.exams[exam.ID] = *cloneExam(*exam)
	return nil
}

func (s *ExamStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.exams[id]; !ok {
		return repository.ErrNotFound
	}
	for _, sess := range s.db.sessions {
		if sess.ExamID == id {
			return repository.ErrConflict
		}
	}
	delete(s.db.exams, id)
	return nil
}

func (s *ExamStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.ExamStatus, isActive bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status == model.ExamStatusEnded {
		return repository.ErrConflict
	}
	e.Status, e.IsActive, e.UpdatedAt = status, isActive, time.Now()
	s.db.exams[id] = e
	return nil
}

func (s *ExamStore) End(_ context.Context, id uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Status == model.ExamStatusEnded {
		return nil, repository.ErrConflict
	}
	e.Status, e.IsActive, e.UpdatedAt = model.ExamStatusEnded, false, at
	s.db.exams[id] = e

	var terminated []uuid.UUID
	for sid, sess := range s.db.sessions {
		if sess.ExamID != id || sess.Status != model.SessionStatusOngoing {
			continue
		}
		sess.Finish(model.SessionStatusTerminated, at)
		sess.UpdatedAt = at
		s.db.sessions[sid] = sess
		terminated = append(terminated, sid)
	}
	return terminated, nil
}

func (s *ExamStore) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]model.Exam, error) {
	return s.list(func(e model.Exam) bool { return e.TeacherID == teacherID }), nil
}

func (s *ExamStore) ListBySchool(_ context.Context, schoolID uuid.UUID, statuses []model.ExamStatus) ([]model.Exam, error) {
	return s.list(func(e model.Exam) bool {
		if e.SchoolID != schoolID {
			return false
		}
		for _, st := range statuses {
			if e.Status == st {
				return true
			}
		}
		return false
	}), nil
}

func (s *ExamStore) list(keep func(model.Exam) bool) []model.Exam {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Exam, 0)
	for _, e := range s.db.exams {
		if keep(e) {
			out = append(out, *cloneExam(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// SessionStore is an in-memory service.SessionStore.
type SessionStore struct{ db *MemoryDB }

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sess, ok := s.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) GetByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (*model.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, sess := range s.db.sessions {
		if sess.ExamID == examID && sess.StudentID == studentID {
			return cloneSession(sess), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *SessionStore) Create(_ context.Context, sess *model.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	exam, ok := s.db.exams[sess.ExamID]
	if !ok || exam.Status != model.ExamStatusActive || !exam.IsActive {
		for _, cur := range s.db.sessions {
			if cur.ExamID == sess.ExamID && cur.StudentID == sess.StudentID {
				return repository.ErrConflict
			}
		}
		return repository.ErrExamClosed
	}
	for _, cur := range s.db.sessions {
		if cur.ExamID == sess.ExamID && cur.StudentID == sess.StudentID {
			return repository.ErrConflict
		}
	}
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	s.db.sessions[sess.ID] = *cloneSession(*sess)
	return nil
}

func (s *SessionStore) Mutate(_ context.Context, id uuid.UUID, fn func(*model.Session) error) (*model.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	work := cloneSession(cur)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.db.sessions[id] = *cloneSession(*work)
	return work, nil
}

func (s *SessionStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Session, error) {
	return s.list(func(sess model.Session) bool { return sess.ExamID == examID }), nil
}

func (s *SessionStore) ListByStudent(_ context.Context, studentID uuid.UUID) ([]model.Session, error) {
	return s.list(func(sess model.Session) bool { return sess.StudentID == studentID }), nil
}

func (s *SessionStore) ListOverdue(_ context.Context, now time.Time, grace time.Duration) ([]uuid.UUID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []uuid.UUID
	for id, sess := range s.db.sessions {
		if sess.Status != model.SessionStatusOngoing {
			continue
		}
		exam, ok := s.db.exams[sess.ExamID]
		if !ok {
			continue
		}
		if now.After(exam.Deadline(sess.StartTime).Add(grace)) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Put stores a session as-is, bypassing Create's uniqueness check.
func (s *SessionStore) Put(sess model.Session) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.sessions[sess.ID] = *cloneSession(sess)
}

func (s *SessionStore) list(keep func(model.Session) bool) []model.Session {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]model.Session, 0)
	for _, sess := range s.db.sessions {
		if keep(sess) {
			out = append(out, *cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func cloneExam(e model.Exam) *model.Exam {
	e.Groups = append([]string(nil), e.Groups...)
	qs := make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]string(nil), q.Options...)
		q.CorrectOptions = append([]int(nil), q.CorrectOptions...)
		qs[i] = q
	}
	e.Questions = qs
	return &e
}

func cloneSession(s model.Session) *model.Session {
	answers := make(model.Answers, len(s.Answers))
	for k, v := range s.Answers {
		v.Indices = append([]int(nil), v.Indices...)
		answers[k] = v
	}
	s.Answers = answers

	grades := make(map[int]float64, len(s.ManualGrades))
	for k, v := range s.ManualGrades {
		grades[k] = v
	}
	s.ManualGrades = grades

	s.Violations = append([]model.Violation{}, s.Violations...)
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return &s
}
