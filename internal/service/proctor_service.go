package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
)

// ProctorService records proctoring signals raised by the exam client.
type ProctorService struct {
	exams    ExamStore
	attempts AttemptStore
	queue    FlagQueue
	flags    FlagStore
	notifier Notifier
	log      zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(exams ExamStore, attempts AttemptStore, queue FlagQueue, flags FlagStore, notifier Notifier, log zerolog.Logger) *ProctorService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ProctorService{
		exams:    exams,
		attempts: attempts,
		queue:    queue,
		flags:    flags,
		notifier: notifier,
		log:      log.With().Str("component", "proctor_service").Logger(),
	}
}

// RecordFlag queues a flag on the caller's in-progress attempt.
func (s *ProctorService) RecordFlag(ctx context.Context, actor model.Actor, attemptID uuid.UUID, req *model.RecordFlagRequest, now time.Time) (*model.SuspiciousFlag, error) {
	ft := model.FlagType(req.Type)
	if !ft.Valid() {
		return nil, validationf("unknown flag type %q", req.Type)
	}

	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr("attempt", err)
	}
	if a.StudentID != actor.UserID {
		return nil, fmt.Errorf("%w: not the attempt's owner", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	flag := model.SuspiciousFlag{
		AttemptID:  a.ID,
		ExamID:     a.ExamID,
		StudentID:  a.StudentID,
		Type:       ft,
		Details:    req.Details,
		RecordedAt: now,
	}
	if err := s.queue.Enqueue(ctx, flag); err != nil {
		return nil, fmt.Errorf("enqueue flag: %w", err)
	}

	s.notifier.Notify(model.NewNotification(model.EventProctorFlag, a.ExamID, flag, now).ForAttempt(a.ID))
	s.log.Debug().Str("attempt_id", a.ID.String()).Str("type", string(ft)).Msg("Proctoring flag recorded")
	return &flag, nil
}

// Summary returns the persisted flags of an attempt with its suspicion score.
func (s *ProctorService) Summary(ctx context.Context, actor model.Actor, attemptID uuid.UUID) (*model.ProctorSummary, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr("attempt", err)
	}
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, storeErr("exam", err)
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}

	flags, err := s.flags.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, storeErr("list flags", err)
	}
	if flags == nil {
		flags = []model.SuspiciousFlag{}
	}
	return &model.ProctorSummary{
		AttemptID:      attemptID,
		Flags:          flags,
		SuspicionScore: model.SuspicionScore(flags),
	}, nil
}
