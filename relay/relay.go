// Package relay contains the raid-relay domain: events with their ordered
// participant submissions, the relay cursor that tracks whose turn it is, the
// transition rules for moving it, and the read-only view projections served
// to moderators, spectators and participants.
package relay

import (
	"regexp"
	"strings"
	"time"
)

// Event is a relay registered by a moderator. Submissions are ordered by
// Order ascending when loaded through the store.
type Event struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Moderator   string       `json:"moderator"`
	Submissions []Submission `json:"submissions,omitempty"`
}

// Submission is one participant's entry: display name, Twitch login and a
// dense 1-based position within the event.
type Submission struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Name    string `json:"name"`
	Twitch  string `json:"twitch"`
	Order   int    `json:"order"`
}

// Cursor points at the currently active submission of an event. RaidedAt is
// nil until the relay has progressed past the current submission.
type Cursor struct {
	EventID             int64      `json:"event_id"`
	CurrentSubmissionID int64      `json:"current_submission_id"`
	RaidedAt            *time.Time `json:"raided_at,omitempty"`
}

// SubmissionByID returns the submission with the given id, or nil.
func (e *Event) SubmissionByID(id int64) *Submission {
	for i := range e.Submissions {
		if e.Submissions[i].ID == id {
			return &e.Submissions[i]
		}
	}
	return nil
}

// SubmissionByLogin returns the submission whose Twitch login matches
// (case-insensitive), or nil.
func (e *Event) SubmissionByLogin(login string) *Submission {
	login = strings.ToLower(strings.TrimSpace(login))
	for i := range e.Submissions {
		if strings.ToLower(e.Submissions[i].Twitch) == login {
			return &e.Submissions[i]
		}
	}
	return nil
}

// SubmissionByOrder returns the submission at the given 1-based position, or nil.
func (e *Event) SubmissionByOrder(order int) *Submission {
	for i := range e.Submissions {
		if e.Submissions[i].Order == order {
			return &e.Submissions[i]
		}
	}
	return nil
}

// Next returns the immediate successor of s by order, or nil when s is last.
func (e *Event) Next(s *Submission) *Submission {
	return e.SubmissionByOrder(s.Order + 1)
}

// Current resolves the cursor against the event's submissions. A stale cursor
// (pointing at a replaced submission) resolves to nil, which views render as
// "not started".
func (c *Cursor) Current(e *Event) *Submission {
	if c == nil {
		return nil
	}
	return e.SubmissionByID(c.CurrentSubmissionID)
}

// SubmissionInput is a participant row as supplied by the moderator (form,
// CSV or sheet import). Order is never taken from the caller; it is derived
// from list position.
type SubmissionInput struct {
	Name   string `json:"name"`
	Twitch string `json:"twitch"`
}

// EventInput is the payload for creating or wholesale-replacing an event.
type EventInput struct {
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Submissions []SubmissionInput `json:"submissions"`
}

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Validate checks the input and returns a KindValidation error carrying
// per-field messages, or nil.
func (in *EventInput) Validate() error {
	fields := map[string]string{}
	if len(strings.TrimSpace(in.Name)) < 3 {
		fields["name"] = "name must be at least 3 characters"
	}
	slug := strings.TrimSpace(in.Slug)
	switch {
	case len(slug) < 3:
		fields["slug"] = "slug must be at least 3 characters"
	case !slugPattern.MatchString(slug):
		fields["slug"] = "slug must contain only alphanumeric characters and hyphens"
	}
	if len(in.Submissions) == 0 {
		fields["submissions"] = "at least one participant is required"
	}
	for _, s := range in.Submissions {
		if len(strings.TrimSpace(s.Twitch)) < 3 {
			fields["submissions"] = "every participant needs a twitch login of at least 3 characters"
			break
		}
	}
	if len(fields) > 0 {
		return Validation(fields)
	}
	return nil
}

// BuildSubmissions converts inputs into submissions with a dense 1..N order
// derived from position. Logins are trimmed and lowercased so identity
// matching against the session user is stable.
func BuildSubmissions(eventID int64, inputs []SubmissionInput) []Submission {
	subs := make([]Submission, 0, len(inputs))
	for i, in := range inputs {
		subs = append(subs, Submission{
			EventID: eventID,
			Name:    strings.TrimSpace(in.Name),
			Twitch:  strings.ToLower(strings.TrimSpace(in.Twitch)),
			Order:   i + 1,
		})
	}
	return subs
}
