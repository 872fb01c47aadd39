package relay

import (
	"context"
	"errors"
	"time"

	"github.com/cma2819/relaying-raids/telemetry"
)

// RaidFunc triggers the external raid from the current broadcaster to the
// target submission's channel. The caller supplies it per operation so the
// service stays free of identity and token concerns.
type RaidFunc func(ctx context.Context, to Submission) error

// Service owns the relay cursor transition rules. All methods validate the
// requested transition against the event's submission set before touching
// the store.
type Service struct {
	Store Store
	// Now is the clock used for raided_at stamps; defaults to time.Now.
	Now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// InitializeCursor creates the event's cursor pointing at the order-1
// submission with no raid recorded. Idempotent: an existing cursor is
// returned unchanged.
func (s *Service) InitializeCursor(ctx context.Context, ev *Event) (*Cursor, error) {
	first := ev.SubmissionByOrder(1)
	if first == nil {
		return nil, Validation(map[string]string{"submissions": "event has no participants"})
	}
	return s.Store.InitCursor(ctx, ev.ID, first.ID)
}

// Advance is the moderator override: move the cursor to any submission of the
// event, forward or backward, optionally marking it as raided. The moderator's
// judgment is trusted over monotonic progression.
func (s *Service) Advance(ctx context.Context, ev *Event, targetSubmissionID int64, markRaided bool) (*Cursor, error) {
	target := ev.SubmissionByID(targetSubmissionID)
	if target == nil {
		return nil, Validation(map[string]string{"submission_id": "submission does not belong to this event"})
	}
	var raidedAt *time.Time
	if markRaided {
		now := s.now()
		raidedAt = &now
	}
	if cur, err := s.Store.Cursor(ctx, ev.ID); err == nil && cur != nil {
		if prev := cur.Current(ev); prev != nil && target.Order < prev.Order {
			telemetry.Inc(telemetry.CursorRewinds)
		}
	}
	if err := s.Store.SetCursor(ctx, ev.ID, target.ID, raidedAt); err != nil {
		return nil, err
	}
	telemetry.Inc(telemetry.CursorAdvances)
	return &Cursor{EventID: ev.ID, CurrentSubmissionID: target.ID, RaidedAt: raidedAt}, nil
}

// ParticipantAdvance moves the cursor from the acting submission to its
// immediate successor, but only after the raid call succeeds. A failed raid
// leaves the cursor untouched so the participant can retry.
//
// This is not a two-phase commit: if the raid succeeds and the cursor write
// then fails, the raid has happened without being recorded and the moderator
// must correct the cursor via Advance.
func (s *Service) ParticipantAdvance(ctx context.Context, ev *Event, acting *Submission, raid RaidFunc) (*Submission, error) {
	next := ev.Next(acting)
	if next == nil {
		return nil, NoNextParticipant()
	}
	telemetry.Inc(telemetry.RaidsStarted)
	if err := raid(ctx, *next); err != nil {
		telemetry.Inc(telemetry.RaidsFailed)
		var re *Error
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, ExternalCall(err)
	}
	telemetry.Inc(telemetry.RaidsSucceeded)
	now := s.now()
	if err := s.Store.SetCursor(ctx, ev.ID, next.ID, &now); err != nil {
		return nil, err
	}
	telemetry.Inc(telemetry.CursorAdvances)
	return next, nil
}

// ParticipantSkip advances to the immediate successor without raiding. The
// handoff still counts as progressed, so raided_at is stamped.
func (s *Service) ParticipantSkip(ctx context.Context, ev *Event, acting *Submission) (*Submission, error) {
	next := ev.Next(acting)
	if next == nil {
		return nil, NoNextParticipant()
	}
	now := s.now()
	if err := s.Store.SetCursor(ctx, ev.ID, next.ID, &now); err != nil {
		return nil, err
	}
	telemetry.Inc(telemetry.RaidsSkipped)
	telemetry.Inc(telemetry.CursorAdvances)
	return next, nil
}
