package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AnswerKind tags the variant held by an Answer.
type AnswerKind string

const (
	AnswerEmpty     AnswerKind = "empty"
	AnswerMcqSingle AnswerKind = "mcq_single"
	AnswerMcqMulti  AnswerKind = "mcq_multi"
	AnswerText      AnswerKind = "text"
)

// Answer is one student response. Only the field matching Kind is meaningful.
type Answer struct {
	Kind    AnswerKind
	Index   int
	Indices []int
	Text    string
}

func McqSingle(i int) Answer { return Answer{Kind: AnswerMcqSingle, Index: i} }

func McqMulti(indices ...int) Answer {
	return Answer{Kind: AnswerMcqMulti, Indices: dedupeInts(indices)}
}

func Text(s string) Answer { return Answer{Kind: AnswerText, Text: s} }

func Empty() Answer { return Answer{Kind: AnswerEmpty} }

// IsEmpty reports whether the student left the question unanswered.
func (a Answer) IsEmpty() bool {
	return a.Kind == "" || a.Kind == AnswerEmpty
}

type answerWire struct {
	Kind    AnswerKind `json:"kind"`
	Index   *int       `json:"index,omitempty"`
	Indices []int      `json:"indices,omitempty"`
	Text    *string    `json:"text,omitempty"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	w := answerWire{Kind: a.Kind}
	switch a.Kind {
	case AnswerMcqSingle:
		idx := a.Index
		w.Index = &idx
	case AnswerMcqMulti:
		w.Indices = a.Indices
	case AnswerText:
		txt := a.Text
		w.Text = &txt
	default:
		w.Kind = AnswerEmpty
	}
	return json.Marshal(w)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var w answerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case AnswerMcqSingle:
		if w.Index == nil {
			return fmt.Errorf("mcq_single answer without index")
		}
		*a = McqSingle(*w.Index)
	case AnswerMcqMulti:
		*a = McqMulti(w.Indices...)
	case AnswerText:
		if w.Text == nil {
			*a = Empty()
			return nil
		}
		*a = Text(*w.Text)
	case AnswerEmpty, "":
		*a = Empty()
	default:
		return fmt.Errorf("unknown answer kind %q", w.Kind)
	}
	return nil
}

// Answers maps question index to the student's answer. Missing keys are unanswered.
type Answers map[int]Answer

// Merge overlays other onto a copy of a.
func (a Answers) Merge(other Answers) Answers {
	out := make(Answers, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// AnsweredCount counts non-empty answers.
func (a Answers) AnsweredCount() int {
	n := 0
	for _, v := range a {
		if !v.IsEmpty() {
			n++
		}
	}
	return n
}

// AnswerError reports a submitted value that does not fit its question.
type AnswerError struct {
	Key    string
	Reason string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer %s: %s", e.Key, e.Reason)
}

// ResolveAnswers decodes raw client answers keyed by question index, using each
// question's declared type to pick the Answer variant.
func ResolveAnswers(questions []Question, raw map[string]json.RawMessage) (Answers, error) {
	out := make(Answers, len(raw))
	for key, value := range raw {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, &AnswerError{Key: key, Reason: "key is not a question index"}
		}
		if idx < 0 || idx >= len(questions) {
			return nil, &AnswerError{Key: key, Reason: "no such question"}
		}

		var ans Answer
		if questions[idx].IsChoice() {
			ans, err = resolveChoice(value)
		} else {
			ans, err = resolveText(value)
		}
		if err != nil {
			return nil, &AnswerError{Key: key, Reason: err.Error()}
		}
		out[idx] = ans
	}
	return out, nil
}

func resolveChoice(raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Empty(), nil
	}

	switch raw[0] {
	case '[':
		var indices []int
		if err := json.Unmarshal(raw, &indices); err != nil {
			return Answer{}, fmt.Errorf("expected a list of option indices")
		}
		if len(indices) == 0 {
			return Empty(), nil
		}
		return McqMulti(indices...), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Answer{}, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return Empty(), nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return Answer{}, fmt.Errorf("expected an option index")
		}
		return McqSingle(i), nil
	default:
		var i int
		if err := json.Unmarshal(raw, &i); err != nil {
			return Answer{}, fmt.Errorf("expected an option index")
		}
		return McqSingle(i), nil
	}
}

func resolveText(raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Empty(), nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Answer{}, err
		}
		if strings.TrimSpace(s) == "" {
			return Empty(), nil
		}
		return Text(s), nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Answer{}, fmt.Errorf("expected text")
		}
		return Text(n.String()), nil
	}
}

func dedupeInts(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
