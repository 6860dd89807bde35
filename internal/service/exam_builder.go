package service

import (
	"fmt"
	"strings"

	"github.com/kicc/cbt-backend/internal/model"
)

// buildExam converts a request into an exam definition, applying defaults and
// checking each question against its type.
func buildExam(req *model.CreateExamRequest) (*model.Exam, error) {
	fields := make(map[string]string)

	questions := make([]model.Question, len(req.Questions))
	for i, in := range req.Questions {
		q := in.ToQuestion()
		if msg := validateQuestion(q); msg != "" {
			fields[fmt.Sprintf("questions[%d]", i)] = msg
		}
		questions[i] = q
	}

	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		fields["ends_at"] = "ends_at must be after starts_at"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	exam := &model.Exam{
		Title:             strings.TrimSpace(req.Title),
		Subject:           strings.TrimSpace(req.Subject),
		DurationMinutes:   req.DurationMinutes,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		ClassLevel:        strings.TrimSpace(req.ClassLevel),
		Groups:            req.Groups,
		Questions:         questions,
		TotalMarks:        req.TotalMarks,
		PassingScore:      req.PassingScore,
		PassingPercentage: model.DefaultPassingPercentage,
		NegativeMarking:   req.NegativeMarking,
		ExamType:          req.ExamType,
		AccessCode:        strings.TrimSpace(req.AccessCode),
	}
	if exam.Groups == nil {
		exam.Groups = []string{}
	}
	if req.PassingPercentage != nil {
		exam.PassingPercentage = *req.PassingPercentage
	}
	if exam.ExamType == "" {
		exam.ExamType = model.ExamTypeBasic
	}
	if exam.ExamType == model.ExamTypeProctored && req.Proctoring != nil {
		exam.Proctoring = *req.Proctoring
	}
	if exam.TotalMarks <= 0 {
		exam.TotalMarks = exam.PossibleMarks()
	}

	return exam, nil
}

func validateQuestion(q model.Question) string {
	if q.Text == "" {
		return "text is required"
	}
	if q.Marks < 0 {
		return "marks must not be negative"
	}

	switch q.Kind() {
	case model.QuestionTypeMCQ:
		if len(q.Options) < 2 {
			return "multiple choice needs at least two options"
		}
	case model.QuestionTypeTrueFalse:
		if len(q.Options) != 2 {
			return "true/false needs exactly two options"
		}
	case model.QuestionTypeFIB:
		if q.CorrectAnswer == "" {
			return "fill-in-the-blank needs a correct answer"
		}
		return ""
	default:
		return ""
	}

	if len(q.CorrectOptions) == 0 {
		return "at least one correct option is required"
	}
	for _, idx := range q.CorrectOptions {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Sprintf("correct option %d is out of range", idx)
		}
	}
	return ""
}
