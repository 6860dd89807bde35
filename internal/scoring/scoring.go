// Package scoring computes session scores from an exam's answer key.
//
// Score is pure: the same exam and answers always produce the same Result.
package scoring

import (
	"strings"

	"github.com/kicc/cbt-backend/internal/model"
)

// Outcome classifies how a single question was scored.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeWrong      Outcome = "wrong"
	OutcomeUnanswered Outcome = "unanswered"
)

// QuestionScore is the per-question breakdown.
type QuestionScore struct {
	Index   int     `json:"index"`
	Outcome Outcome `json:"outcome"`
	Awarded float64 `json:"awarded"`
}

// Result is the outcome of scoring one submission.
type Result struct {
	TotalScore         float64         `json:"total_score"`
	CorrectCount       int             `json:"correct_count"`
	WrongCount         int             `json:"wrong_count"`
	TotalPossibleMarks float64         `json:"total_possible_marks"`
	Percentage         float64         `json:"percentage"`
	Breakdown          []QuestionScore `json:"breakdown"`
}

// Score grades answers against the exam. Wrong answers cost the exam's
// negative marking; unanswered questions cost nothing. The total never drops
// below zero.
func Score(exam *model.Exam, answers model.Answers) Result {
	res := Result{Breakdown: make([]QuestionScore, len(exam.Questions))}
	penalty := exam.NegativeMarking
	if penalty < 0 {
		penalty = 0
	}

	for i, q := range exam.Questions {
		marks := q.EffectiveMarks()
		res.TotalPossibleMarks += marks

		ans, ok := answers[i]
		qs := QuestionScore{Index: i, Outcome: OutcomeUnanswered}

		switch {
		case !ok || ans.IsEmpty():
			// unanswered: no credit, no penalty
		case IsCorrect(q, ans):
			qs.Outcome = OutcomeCorrect
			qs.Awarded = marks
			res.CorrectCount++
		default:
			qs.Outcome = OutcomeWrong
			qs.Awarded = -penalty
			res.WrongCount++
		}

		res.TotalScore += qs.Awarded
		res.Breakdown[i] = qs
	}

	if res.TotalScore < 0 {
		res.TotalScore = 0
	}
	if res.TotalPossibleMarks > 0 {
		res.Percentage = res.TotalScore / res.TotalPossibleMarks * 100
	}
	return res
}

// IsCorrect reports whether a non-empty answer matches the question's key.
// Essays are credited provisionally when non-blank and reviewed by the teacher.
func IsCorrect(q model.Question, ans model.Answer) bool {
	switch q.Kind() {
	case model.QuestionTypeMCQ, model.QuestionTypeTrueFalse:
		switch ans.Kind {
		case model.AnswerMcqSingle:
			return q.IsCorrectOption(ans.Index)
		case model.AnswerMcqMulti:
			if len(ans.Indices) != len(q.CorrectOptions) {
				return false
			}
			for _, idx := range ans.Indices {
				if !q.IsCorrectOption(idx) {
					return false
				}
			}
			return true
		}
		return false

	case model.QuestionTypeFIB:
		if ans.Kind != model.AnswerText {
			return false
		}
		got := strings.ToLower(strings.TrimSpace(ans.Text))
		want := strings.ToLower(strings.TrimSpace(q.CorrectAnswer))
		return want != "" && got == want

	case model.QuestionTypeEssay:
		return ans.Kind == model.AnswerText && strings.TrimSpace(ans.Text) != ""
	}
	return false
}
