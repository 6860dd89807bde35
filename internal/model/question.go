package model

import "strings"

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "mcq"
	QuestionTypeTrueFalse QuestionType = "true_false"
	QuestionTypeFIB       QuestionType = "fib"
	QuestionTypeEssay     QuestionType = "essay"
)

// Question is embedded in an exam; its position in the list is its index.
type Question struct {
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options,omitempty"`
	CorrectOptions []int        `json:"correct_options,omitempty"`
	CorrectAnswer  string       `json:"correct_answer,omitempty"`
	Marks          float64      `json:"marks"`
	ImageURL       string       `json:"image_url,omitempty"`
}

// Kind returns the declared type, defaulting to mcq.
func (q Question) Kind() QuestionType {
	if q.Type == "" {
		return QuestionTypeMCQ
	}
	return q.Type
}

// IsChoice reports whether the question is answered by option index.
func (q Question) IsChoice() bool {
	k := q.Kind()
	return k == QuestionTypeMCQ || k == QuestionTypeTrueFalse
}

// EffectiveMarks returns the marks, treating 0 as 1.
func (q Question) EffectiveMarks() float64 {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// IsCorrectOption reports whether i is one of the correct option indices.
func (q Question) IsCorrectOption(i int) bool {
	for _, c := range q.CorrectOptions {
		if c == i {
			return true
		}
	}
	return false
}

// PaperQuestion is the student-facing view of a question (no answer key).
type PaperQuestion struct {
	Index    int          `json:"index"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Marks    float64      `json:"marks"`
	ImageURL string       `json:"image_url,omitempty"`
	// MultiSelect tells the client the question accepts more than one option.
	MultiSelect bool `json:"multi_select,omitempty"`
}

// Paper strips the answer key.
func (q Question) Paper(index int) PaperQuestion {
	return PaperQuestion{
		Index:       index,
		Text:        q.Text,
		Type:        q.Kind(),
		Options:     q.Options,
		Marks:       q.EffectiveMarks(),
		ImageURL:    q.ImageURL,
		MultiSelect: q.IsChoice() && len(q.CorrectOptions) > 1,
	}
}

// QuestionInput is the request shape for a question. It is the only place the
// legacy singular correct_option is accepted.
type QuestionInput struct {
	Text           string       `json:"text" binding:"required,notblank"`
	Type           QuestionType `json:"type" binding:"omitempty,oneof=mcq true_false fib essay"`
	Options        []string     `json:"options"`
	CorrectOptions []int        `json:"correct_options"`
	CorrectOption  *int         `json:"correct_option"`
	CorrectAnswer  string       `json:"correct_answer"`
	Marks          float64      `json:"marks" binding:"min=0"`
	ImageURL       string       `json:"image_url" binding:"omitempty,max=2048"`
}

// ToQuestion normalizes the input into the canonical question shape.
func (in QuestionInput) ToQuestion() Question {
	q := Question{
		Text:          strings.TrimSpace(in.Text),
		Type:          in.Type,
		Options:       in.Options,
		CorrectAnswer: strings.TrimSpace(in.CorrectAnswer),
		Marks:         in.Marks,
		ImageURL:      in.ImageURL,
	}
	if q.Type == "" {
		q.Type = QuestionTypeMCQ
	}

	switch {
	case len(in.CorrectOptions) > 0:
		q.CorrectOptions = dedupeInts(in.CorrectOptions)
	case in.CorrectOption != nil:
		q.CorrectOptions = []int{*in.CorrectOption}
	}

	if q.Type == QuestionTypeTrueFalse && len(q.Options) == 0 {
		q.Options = []string{"True", "False"}
	}
	if !q.IsChoice() {
		q.Options = nil
		q.CorrectOptions = nil
	}
	return q
}
