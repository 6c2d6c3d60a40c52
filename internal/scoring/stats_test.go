package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
)

func gradedAttempt(total, pct float64, passed bool, slots ...model.AnswerSlot) model.Attempt {
	return model.Attempt{
		ID:         uuid.New(),
		Status:     model.AttemptStatusGraded,
		TotalScore: total,
		Percentage: pct,
		IsPassed:   passed,
		Answers:    slots,
	}
}

func TestStatistics_Empty(t *testing.T) {
	q := question(model.QuestionTypeMCQ, 5, model.ChoiceAnswer(0))
	exam := &model.Exam{ID: uuid.New(), QuestionIDs: []uuid.UUID{q.ID}}

	stats := Statistics(exam, map[uuid.UUID]*model.Question{q.ID: q}, []model.Attempt{
		{Status: model.AttemptStatusSubmitted, TotalScore: 5},
	})

	assert.Equal(t, 0, stats.TotalAttempts)
	assert.Zero(t, stats.AverageScore)
	assert.Zero(t, stats.PassPercentage)
	assert.Zero(t, stats.MedianScore)
	assert.Equal(t, Distribution{}, stats.ScoreDistribution)
	require.Len(t, stats.Questions, 1)
	assert.Equal(t, 0, stats.Questions[0].AttemptCount)
	assert.Zero(t, stats.Questions[0].SuccessRate)
}

func TestStatistics_Aggregates(t *testing.T) {
	exam := &model.Exam{ID: uuid.New()}
	attempts := []model.Attempt{
		gradedAttempt(18, 90, true),
		gradedAttempt(10, 50, false),
		gradedAttempt(16, 80, true),
		gradedAttempt(14, 70, true),
		{Status: model.AttemptStatusAbandoned, TotalScore: 0},
	}

	stats := Statistics(exam, nil, attempts)

	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 14.5, stats.AverageScore)
	assert.Equal(t, 75.0, stats.PassPercentage)
	assert.Equal(t, 18.0, stats.HighestScore)
	assert.Equal(t, 10.0, stats.LowestScore)
	assert.Equal(t, 15.0, stats.MedianScore)
	assert.Equal(t, Distribution{Excellent: 1, Good: 1, Average: 1, Poor: 1}, stats.ScoreDistribution)
}

func TestStatistics_OddMedian(t *testing.T) {
	exam := &model.Exam{ID: uuid.New()}
	stats := Statistics(exam, nil, []model.Attempt{
		gradedAttempt(3, 30, false),
		gradedAttempt(9, 90, true),
		gradedAttempt(6, 65, true),
	})

	assert.Equal(t, 6.0, stats.MedianScore)
	assert.Equal(t, 1, stats.ScoreDistribution.BelowAverage)
}

func TestStatistics_PerQuestion(t *testing.T) {
	mcq := question(model.QuestionTypeMCQ, 5, model.ChoiceAnswer(1))
	essay := question(model.QuestionTypeEssay, 10, nil)
	exam := &model.Exam{ID: uuid.New(), QuestionIDs: []uuid.UUID{mcq.ID, essay.ID}}
	qs := map[uuid.UUID]*model.Question{mcq.ID: mcq, essay.ID: essay}

	a1 := gradedAttempt(15, 100, true,
		model.AnswerSlot{QuestionID: mcq.ID, Answer: model.ChoiceAnswer(1), TimeSpentSeconds: 30},
		model.AnswerSlot{QuestionID: essay.ID, Answer: model.TextAnswer("x"), TimeSpentSeconds: 100},
	)
	a1.Feedback = []model.Feedback{{QuestionID: essay.ID, Marks: 10}}

	a2 := gradedAttempt(4, 26.67, false,
		model.AnswerSlot{QuestionID: mcq.ID, Answer: model.ChoiceAnswer(0), TimeSpentSeconds: 10},
		model.AnswerSlot{QuestionID: essay.ID, Answer: model.TextAnswer("y"), TimeSpentSeconds: 200},
	)
	a2.Feedback = []model.Feedback{{QuestionID: essay.ID, Marks: 4}}

	stats := Statistics(exam, qs, []model.Attempt{a1, a2})
	require.Len(t, stats.Questions, 2)

	m := stats.Questions[0]
	assert.Equal(t, mcq.ID, m.QuestionID)
	assert.Equal(t, 2, m.AttemptCount)
	assert.Equal(t, 1, m.CorrectCount)
	assert.Equal(t, 1, m.IncorrectCount)
	assert.Equal(t, 50.0, m.SuccessRate)
	assert.Equal(t, 20.0, m.AverageTimeSpent)

	e := stats.Questions[1]
	assert.Equal(t, 1, e.CorrectCount)
	assert.Equal(t, 150.0, e.AverageTimeSpent)
}
