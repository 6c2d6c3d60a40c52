// Package scoring grades attempts and aggregates exam statistics. Everything
// here is a pure function of its inputs.
package scoring

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// Policy carries the exam settings that affect auto-grading.
type Policy struct {
	NegativeMarking bool
	Factor          float64
}

// PolicyFor extracts the grading policy of an exam.
func PolicyFor(e *model.Exam) Policy {
	return Policy{NegativeMarking: e.NegativeMarking, Factor: e.NegativeMarkingFactor}
}

// Outcome is the auto-grade verdict for one slot.
type Outcome struct {
	QuestionID uuid.UUID
	Graded     bool
	Correct    bool
	Awarded    float64
}

// Result aggregates the outcomes of an auto-grade run.
type Result struct {
	Score    float64
	Raw      float64
	Outcomes []Outcome
}

// AutoGrade scores every auto-gradable slot. Unanswered slots score zero and
// carry no penalty. Score is clamped at zero, Raw is the unclamped sum.
func AutoGrade(p Policy, slots []model.AnswerSlot, questions map[uuid.UUID]*model.Question) Result {
	var res Result
	res.Outcomes = make([]Outcome, 0, len(slots))

	for _, slot := range slots {
		q, ok := questions[slot.QuestionID]
		out := Outcome{QuestionID: slot.QuestionID}
		if !ok || !q.Type.AutoGradable() {
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		out.Graded = true
		switch {
		case slot.Answer == nil:
		case IsCorrect(q, slot.Answer):
			out.Correct = true
			out.Awarded = q.Marks
		case p.NegativeMarking:
			out.Awarded = -q.Marks * p.Factor
		}
		res.Raw += out.Awarded
		res.Outcomes = append(res.Outcomes, out)
	}

	res.Score = math.Max(0, res.Raw)
	return res
}

// IsCorrect compares an answer against the question's key structurally.
// Essays and other keyless questions are never correct.
func IsCorrect(q *model.Question, a *model.Answer) bool {
	key := AnswerKey(q)
	if key == nil || a == nil {
		return false
	}
	if q.Type == model.QuestionTypeMCQ {
		key = resolveOption(q, key)
		a = resolveOption(q, a)
	}
	return model.Equal(q.Type, key, a)
}

// AnswerKey returns the correct answer of q. For mcq questions without an
// explicit key it is derived from the options flagged correct.
func AnswerKey(q *model.Question) *model.Answer {
	if q.CorrectAnswer != nil {
		return q.CorrectAnswer
	}
	if q.Type != model.QuestionTypeMCQ {
		return nil
	}

	var idx []int
	for i, o := range q.Options {
		if o.IsCorrect {
			idx = append(idx, i)
		}
	}
	switch len(idx) {
	case 0:
		return nil
	case 1:
		return model.ChoiceAnswer(idx[0])
	default:
		return model.ChoicesAnswer(idx...)
	}
}

// resolveOption maps a text answer naming an mcq option, either by letter
// label ("B") or by the option's text, onto the option index.
func resolveOption(q *model.Question, a *model.Answer) *model.Answer {
	if a.Kind != model.AnswerKindText || len(q.Options) == 0 {
		return a
	}

	s := strings.TrimSpace(a.Text)
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c <= 'z' {
			if i := int(c - 'a'); i < len(q.Options) {
				return model.ChoiceAnswer(i)
			}
		}
	}
	for i, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o.Text), s) {
			return model.ChoiceAnswer(i)
		}
	}
	return a
}

// Total is the attempt score: the auto part never drags the total below
// the manual marks.
func Total(auto, manual float64) float64 {
	return math.Max(0, auto) + manual
}

// Derive computes percentage and pass/fail from the stored total.
func Derive(total, totalMarks, passingMarks float64) (percentage float64, passed bool) {
	if totalMarks > 0 {
		percentage = Round2(total / totalMarks * 100)
	}
	return percentage, total >= passingMarks
}

// ManualSum adds up feedback marks.
func ManualSum(feedback []model.Feedback) float64 {
	var sum float64
	for _, f := range feedback {
		sum += f.Marks
	}
	return sum
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
