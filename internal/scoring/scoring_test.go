package scoring

import (
	"testing"

	"github.com/kicc/cbt-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func twoMCQ(negative float64) *model.Exam {
	return &model.Exam{
		NegativeMarking: negative,
		Questions: []model.Question{
			{Text: "2+2", Type: model.QuestionTypeMCQ, Options: []string{"3", "4"}, CorrectOptions: []int{1}, Marks: 5},
			{Text: "3+3", Type: model.QuestionTypeMCQ, Options: []string{"6", "7"}, CorrectOptions: []int{0}, Marks: 5},
		},
	}
}

func TestScore_NegativeMarking(t *testing.T) {
	exam := twoMCQ(2)

	res := Score(exam, model.Answers{0: model.McqSingle(1), 1: model.McqSingle(1)})

	assert.Equal(t, 3.0, res.TotalScore)
	assert.Equal(t, 1, res.CorrectCount)
	assert.Equal(t, 1, res.WrongCount)
	assert.Equal(t, 10.0, res.TotalPossibleMarks)
	assert.InDelta(t, 30.0, res.Percentage, 1e-9)
}

func TestScore_UnansweredCarriesNoPenalty(t *testing.T) {
	exam := twoMCQ(2)

	res := Score(exam, model.Answers{0: model.McqSingle(1)})
	assert.Equal(t, 5.0, res.TotalScore)
	assert.Equal(t, 0, res.WrongCount)
	assert.Equal(t, OutcomeUnanswered, res.Breakdown[1].Outcome)

	res = Score(exam, model.Answers{0: model.McqSingle(1), 1: model.Empty()})
	assert.Equal(t, 5.0, res.TotalScore)
	assert.Equal(t, 0, res.WrongCount)
}

func TestScore_ClampsAtZero(t *testing.T) {
	exam := twoMCQ(10)

	res := Score(exam, model.Answers{0: model.McqSingle(0), 1: model.McqSingle(1)})

	assert.Equal(t, 0.0, res.TotalScore)
	assert.Equal(t, 0.0, res.Percentage)
	assert.Equal(t, 2, res.WrongCount)
}

func TestScore_ZeroMarksCountAsOne(t *testing.T) {
	exam := &model.Exam{Questions: []model.Question{
		{Type: model.QuestionTypeTrueFalse, Options: []string{"True", "False"}, CorrectOptions: []int{0}},
	}}

	res := Score(exam, model.Answers{0: model.McqSingle(0)})

	assert.Equal(t, 1.0, res.TotalPossibleMarks)
	assert.Equal(t, 1.0, res.TotalScore)
	assert.Equal(t, 100.0, res.Percentage)
}

func TestScore_EmptyExam(t *testing.T) {
	res := Score(&model.Exam{}, nil)
	assert.Equal(t, 0.0, res.Percentage)
	assert.Equal(t, 0.0, res.TotalPossibleMarks)
}

func TestIsCorrect(t *testing.T) {
	multi := model.Question{Type: model.QuestionTypeMCQ, Options: []string{"a", "b", "c"}, CorrectOptions: []int{0, 2}}
	untyped := model.Question{Options: []string{"a", "b"}, CorrectOptions: []int{1}}
	fib := model.Question{Type: model.QuestionTypeFIB, CorrectAnswer: "Abuja"}
	essay := model.Question{Type: model.QuestionTypeEssay}

	tests := []struct {
		name string
		q    model.Question
		ans  model.Answer
		want bool
	}{
		{"multi exact set any order", multi, model.McqMulti(2, 0), true},
		{"multi subset gets no partial credit", multi, model.McqMulti(0), false},
		{"multi superset", multi, model.McqMulti(0, 1, 2), false},
		{"multi duplicates do not pad length", multi, model.McqMulti(0, 0), false},
		{"scalar in multi set", multi, model.McqSingle(2), true},
		{"scalar not in set", multi, model.McqSingle(1), false},
		{"untyped question scored as mcq", untyped, model.McqSingle(1), true},
		{"text answer on mcq", untyped, model.Text("1"), false},
		{"fib trims and ignores case", fib, model.Text("  aBUJA "), true},
		{"fib mismatch", fib, model.Text("Lagos"), false},
		{"essay non-blank is provisional credit", essay, model.Text("My answer"), true},
		{"essay blank", essay, model.Text("   "), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCorrect(tt.q, tt.ans))
		})
	}
}

func TestScore_IsDeterministic(t *testing.T) {
	exam := &model.Exam{
		NegativeMarking: 0.5,
		Questions: []model.Question{
			{Type: model.QuestionTypeMCQ, Options: []string{"a", "b"}, CorrectOptions: []int{0}, Marks: 2},
			{Type: model.QuestionTypeFIB, CorrectAnswer: "go", Marks: 3},
			{Type: model.QuestionTypeEssay, Marks: 5},
		},
	}
	answers := model.Answers{0: model.McqSingle(1), 1: model.Text("Go"), 2: model.Text("essay")}

	first := Score(exam, answers)
	second := Score(exam, answers)

	assert.Equal(t, first, second)
	assert.Equal(t, 7.5, first.TotalScore)
	assert.Equal(t, 2, first.CorrectCount)
	assert.Equal(t, 1, first.WrongCount)
}
