package relay

import "time"

// Position annotates a submission relative to the cursor in the moderator
// progress view.
type Position string

const (
	PositionPast    Position = "past"
	PositionCurrent Position = "current"
	PositionFuture  Position = "future"
)

// ProgressEntry is one row of the moderator progress view.
type ProgressEntry struct {
	Submission
	Position Position `json:"position"`
}

// ProgressView is the moderator's full picture: every submission annotated
// past/current/future, plus the raid timestamp of the current hop.
type ProgressView struct {
	Entries  []ProgressEntry `json:"entries"`
	Current  *Submission     `json:"current,omitempty"`
	RaidedAt *time.Time      `json:"raided_at,omitempty"`
}

// Progress derives the moderator view from the event and cursor. With no
// cursor (or a stale one after submission replacement) everything is future.
func Progress(ev *Event, cur *Cursor) ProgressView {
	current := cur.Current(ev)
	view := ProgressView{Entries: make([]ProgressEntry, 0, len(ev.Submissions)), Current: current}
	if cur != nil && current != nil {
		view.RaidedAt = cur.RaidedAt
	}
	for _, sub := range ev.Submissions {
		pos := PositionFuture
		if current != nil {
			switch {
			case sub.Order < current.Order:
				pos = PositionPast
			case sub.Order == current.Order:
				pos = PositionCurrent
			}
		}
		view.Entries = append(view.Entries, ProgressEntry{Submission: sub, Position: pos})
	}
	return view
}

// LiveView is the spectator projection: only the current submission, no
// participant controls. Started is false until the cursor exists.
type LiveView struct {
	Started bool        `json:"started"`
	Current *Submission `json:"current,omitempty"`
}

// Live derives the spectator view.
func Live(ev *Event, cur *Cursor) LiveView {
	current := cur.Current(ev)
	return LiveView{Started: current != nil, Current: current}
}

// ParticipantView is the acting participant's projection: their own slot, the
// successor they would raid, and whether the advance/skip controls apply.
type ParticipantView struct {
	Self      Submission  `json:"self"`
	Next      *Submission `json:"next,omitempty"`
	Current   *Submission `json:"current,omitempty"`
	IsCurrent bool        `json:"is_current"`
	IsLast    bool        `json:"is_last"`
}

// Participant derives the acting participant's view.
func Participant(ev *Event, cur *Cursor, self *Submission) ParticipantView {
	current := cur.Current(ev)
	next := ev.Next(self)
	return ParticipantView{
		Self:      *self,
		Next:      next,
		Current:   current,
		IsCurrent: current != nil && current.ID == self.ID,
		IsLast:    next == nil,
	}
}
