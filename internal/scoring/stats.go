package scoring

import (
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// Distribution buckets attempts by percentage.
type Distribution struct {
	Excellent    int `json:"excellent"`
	Good         int `json:"good"`
	Average      int `json:"average"`
	BelowAverage int `json:"below_average"`
	Poor         int `json:"poor"`
}

func (d *Distribution) add(pct float64) {
	switch {
	case pct >= 90:
		d.Excellent++
	case pct >= 80:
		d.Good++
	case pct >= 70:
		d.Average++
	case pct >= 60:
		d.BelowAverage++
	default:
		d.Poor++
	}
}

// QuestionStat is the per-question breakdown over graded attempts.
type QuestionStat struct {
	QuestionID       uuid.UUID          `json:"question_id"`
	Text             string             `json:"question_text"`
	Type             model.QuestionType `json:"type"`
	Topic            string             `json:"topic"`
	Difficulty       model.Difficulty   `json:"difficulty"`
	AttemptCount     int                `json:"attempt_count"`
	CorrectCount     int                `json:"correct_count"`
	IncorrectCount   int                `json:"incorrect_count"`
	SuccessRate      float64            `json:"success_rate"`
	AverageTimeSpent float64            `json:"average_time_spent"`
}

// ExamStatistics summarises the graded attempts of one exam.
type ExamStatistics struct {
	ExamID            uuid.UUID      `json:"exam_id"`
	TotalAttempts     int            `json:"total_attempts"`
	AverageScore      float64        `json:"average_score"`
	PassPercentage    float64        `json:"pass_percentage"`
	HighestScore      float64        `json:"highest_score"`
	LowestScore       float64        `json:"lowest_score"`
	MedianScore       float64        `json:"median_score"`
	ScoreDistribution Distribution   `json:"score_distribution"`
	Questions         []QuestionStat `json:"question_stats"`
}

// Statistics aggregates graded attempts of exam. Attempts in any other status
// are ignored. With nothing graded the result is zero-valued, with one
// zeroed entry per exam question.
func Statistics(exam *model.Exam, questions map[uuid.UUID]*model.Question, attempts []model.Attempt) ExamStatistics {
	stats := ExamStatistics{ExamID: exam.ID}

	graded := make([]*model.Attempt, 0, len(attempts))
	for i := range attempts {
		if attempts[i].Status == model.AttemptStatusGraded {
			graded = append(graded, &attempts[i])
		}
	}

	stats.Questions = questionStats(exam, questions, graded)
	if len(graded) == 0 {
		return stats
	}

	scores := make([]float64, len(graded))
	passed := 0
	var sum float64
	for i, a := range graded {
		scores[i] = a.TotalScore
		sum += a.TotalScore
		if a.IsPassed {
			passed++
		}
		stats.ScoreDistribution.add(a.Percentage)
	}
	sort.Float64s(scores)

	n := len(scores)
	stats.TotalAttempts = n
	stats.AverageScore = Round2(sum / float64(n))
	stats.PassPercentage = Round2(float64(passed) / float64(n) * 100)
	stats.LowestScore = scores[0]
	stats.HighestScore = scores[n-1]
	if n%2 == 0 {
		stats.MedianScore = Round2((scores[n/2-1] + scores[n/2]) / 2)
	} else {
		stats.MedianScore = scores[n/2]
	}
	return stats
}

func questionStats(exam *model.Exam, questions map[uuid.UUID]*model.Question, graded []*model.Attempt) []QuestionStat {
	out := make([]QuestionStat, 0, len(exam.QuestionIDs))
	for _, qid := range exam.QuestionIDs {
		st := QuestionStat{QuestionID: qid}
		q, ok := questions[qid]
		if ok {
			st.Text = q.Text
			st.Type = q.Type
			st.Topic = q.Topic
			st.Difficulty = q.Difficulty
		}

		var spent int
		for _, a := range graded {
			slot := a.Slot(qid)
			if slot == nil {
				continue
			}
			st.AttemptCount++
			spent += slot.TimeSpentSeconds
			if ok && slotCorrect(q, slot, a.Feedback) {
				st.CorrectCount++
			} else {
				st.IncorrectCount++
			}
		}

		if st.AttemptCount > 0 {
			st.SuccessRate = Round2(float64(st.CorrectCount) / float64(st.AttemptCount) * 100)
			st.AverageTimeSpent = Round2(float64(spent) / float64(st.AttemptCount))
		}
		out = append(out, st)
	}
	return out
}

// slotCorrect treats a manually graded answer as correct when it received
// full marks.
func slotCorrect(q *model.Question, slot *model.AnswerSlot, feedback []model.Feedback) bool {
	if q.Type.AutoGradable() {
		return IsCorrect(q, slot.Answer)
	}
	for _, f := range feedback {
		if f.QuestionID == q.ID {
			return f.Marks >= q.Marks
		}
	}
	return false
}
