package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AnswerKind tags the payload carried by an Answer.
type AnswerKind string

const (
	AnswerKindChoice  AnswerKind = "choice"
	AnswerKindChoices AnswerKind = "choices"
	AnswerKindBoolean AnswerKind = "boolean"
	AnswerKindText    AnswerKind = "text"
	AnswerKindMapping AnswerKind = "mapping"
)

// ErrUnsupportedAnswer is returned when a JSON value cannot be decoded into any answer kind.
var ErrUnsupportedAnswer = errors.New("unsupported answer value")

// Answer is a submitted or correct answer. Exactly one payload field is
// meaningful, selected by Kind. A nil *Answer means "no answer".
//
// On the wire an Answer is the natural JSON value: a number (choice), an array
// of numbers (choices), a boolean, a string, or an object of string pairs.
type Answer struct {
	Kind    AnswerKind
	Choice  int
	Choices []int
	Bool    bool
	Text    string
	Mapping map[string]string
}

// ChoiceAnswer selects a single option by its original index.
func ChoiceAnswer(i int) *Answer { return &Answer{Kind: AnswerKindChoice, Choice: i} }

// ChoicesAnswer selects several options by their original indices.
func ChoicesAnswer(idx ...int) *Answer {
	return &Answer{Kind: AnswerKindChoices, Choices: append([]int(nil), idx...)}
}

// BoolAnswer is a true/false answer.
func BoolAnswer(b bool) *Answer { return &Answer{Kind: AnswerKindBoolean, Bool: b} }

// TextAnswer is a free-text answer, also used for label-keyed options such as "B".
func TextAnswer(s string) *Answer { return &Answer{Kind: AnswerKindText, Text: s} }

// MappingAnswer pairs left items with right items for matching questions.
func MappingAnswer(m map[string]string) *Answer {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Answer{Kind: AnswerKindMapping, Mapping: cp}
}

// MarshalJSON encodes the answer as its natural JSON value.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerKindChoice:
		return json.Marshal(a.Choice)
	case AnswerKindChoices:
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	case AnswerKindBoolean:
		return json.Marshal(a.Bool)
	case AnswerKindText:
		return json.Marshal(a.Text)
	case AnswerKindMapping:
		if a.Mapping == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(a.Mapping)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedAnswer, a.Kind)
	}
}

// UnmarshalJSON infers the kind from the JSON value. JSON null is rejected
// here; callers decode into *Answer so that null leaves the pointer nil.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrUnsupportedAnswer
	}

	switch data[0] {
	case 'n':
		return fmt.Errorf("%w: null", ErrUnsupportedAnswer)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*a = *BoolAnswer(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = *TextAnswer(s)
	case '[':
		var idx []int
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("%w: arrays must hold option indices", ErrUnsupportedAnswer)
		}
		*a = *ChoicesAnswer(idx...)
	case '{':
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: objects must map strings to strings", ErrUnsupportedAnswer)
		}
		*a = *MappingAnswer(m)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("%w: option index must be an integer", ErrUnsupportedAnswer)
		}
		*a = *ChoiceAnswer(int(i))
	}
	return nil
}

// Normalize returns the answer in the canonical shape for a question type.
// True/false questions accept "true"/"false" text; text is trimmed; index sets
// are sorted and de-duplicated.
func (a *Answer) Normalize(qt QuestionType) *Answer {
	if a == nil {
		return nil
	}

	out := *a
	switch a.Kind {
	case AnswerKindText:
		out.Text = strings.TrimSpace(a.Text)
		if qt == QuestionTypeTrueFalse {
			switch strings.ToLower(out.Text) {
			case "true":
				return BoolAnswer(true)
			case "false":
				return BoolAnswer(false)
			}
		}
	case AnswerKindChoices:
		seen := make(map[int]struct{}, len(a.Choices))
		uniq := make([]int, 0, len(a.Choices))
		for _, c := range a.Choices {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			uniq = append(uniq, c)
		}
		sort.Ints(uniq)
		if len(uniq) == 1 {
			return ChoiceAnswer(uniq[0])
		}
		out.Choices = uniq
	case AnswerKindMapping:
		out.Mapping = make(map[string]string, len(a.Mapping))
		for k, v := range a.Mapping {
			out.Mapping[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return &out
}

// Canonical returns a stable serialization for structural equality.
// A nil answer canonicalizes to "null".
func (a *Answer) Canonical(qt QuestionType) string {
	n := a.Normalize(qt)
	if n == nil {
		return "null"
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return "invalid"
	}
	return string(n.Kind) + ":" + string(raw)
}

// Equal reports whether two answers are the same once normalized for qt.
func Equal(qt QuestionType, a, b *Answer) bool {
	return a.Canonical(qt) == b.Canonical(qt)
}
