package model

import (
	"time"

	"github.com/google/uuid"
)

// FlagType enumerates proctoring signals reported by the exam client.
type FlagType string

const (
	FlagTabSwitch     FlagType = "tab-switch"
	FlagCopyPaste     FlagType = "copy-paste"
	FlagWindowBlur    FlagType = "window-blur"
	FlagMultipleFaces FlagType = "multiple-faces"
)

// flagWeights is the suspicion contributed by one flag of each type.
var flagWeights = map[FlagType]int{
	FlagTabSwitch:     10,
	FlagCopyPaste:     15,
	FlagWindowBlur:    5,
	FlagMultipleFaces: 30,
}

// Valid reports whether t is a known flag type.
func (t FlagType) Valid() bool {
	_, ok := flagWeights[t]
	return ok
}

// SuspiciousFlag is one proctoring event on an attempt.
type SuspiciousFlag struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  uuid.UUID `json:"student_id"`
	Type       FlagType  `json:"type"`
	Details    string    `json:"details,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SuspicionScore weighs flags into a 0-100 score.
func SuspicionScore(flags []SuspiciousFlag) int {
	score := 0
	for _, f := range flags {
		score += flagWeights[f.Type]
		if score >= 100 {
			return 100
		}
	}
	return score
}

// ProctorSummary is the proctoring record of one attempt.
type ProctorSummary struct {
	AttemptID      uuid.UUID        `json:"attempt_id"`
	Flags          []SuspiciousFlag `json:"flags"`
	SuspicionScore int              `json:"suspicion_score"`
}

// RecordFlagRequest is the payload reporting a proctoring event.
type RecordFlagRequest struct {
	Type    string `json:"type" binding:"required,oneof=tab-switch copy-paste window-blur multiple-faces"`
	Details string `json:"details" binding:"omitempty,max=1000"`
}
