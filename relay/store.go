package relay

import (
	"context"
	"time"
)

// Store is the persistence boundary for events, submissions and cursors.
// The production implementation is PostgresStore; tests use the in-memory
// fake from testutil.
type Store interface {
	// CreateEvent inserts the event, its submissions and an initial cursor
	// pointing at the order-1 submission, atomically. Sets ev.ID and the
	// submission IDs on success.
	CreateEvent(ctx context.Context, ev *Event) error

	// UpdateEvent updates name and slug and wholesale-replaces the
	// submissions (delete-all-then-reinsert) in one transaction. An existing
	// cursor is re-pointed at the new order-1 submission with RaidedAt
	// cleared, since the old submission ids no longer exist.
	UpdateEvent(ctx context.Context, ev *Event) error

	// DeleteEvent removes the event; submissions and cursor cascade.
	DeleteEvent(ctx context.Context, id int64) error

	// EventBySlug loads an event with its submissions ordered by position.
	// Returns a KindNotFound error when the slug is unknown.
	EventBySlug(ctx context.Context, slug string) (*Event, error)

	// EventByID loads an event with its submissions ordered by position.
	EventByID(ctx context.Context, id int64) (*Event, error)

	// EventsByModerator lists events owned by the moderator, newest first,
	// without submissions.
	EventsByModerator(ctx context.Context, moderator string) ([]Event, error)

	// EventsByParticipant lists events in which the Twitch login is
	// registered, without submissions.
	EventsByParticipant(ctx context.Context, login string) ([]Event, error)

	// Cursor returns the event's cursor, or (nil, nil) when none exists yet.
	Cursor(ctx context.Context, eventID int64) (*Cursor, error)

	// InitCursor creates the cursor pointing at submissionID if absent
	// (insert-on-conflict-do-nothing) and returns the stored cursor, which
	// may differ from the requested one when it already existed.
	InitCursor(ctx context.Context, eventID, submissionID int64) (*Cursor, error)

	// SetCursor moves the cursor. raidedAt nil clears the timestamp.
	// Last-write-wins; no version check.
	SetCursor(ctx context.Context, eventID, submissionID int64, raidedAt *time.Time) error

	// SlugAvailable reports whether the slug is unused, ignoring the event
	// with excludeEventID (0 to exclude none).
	SlugAvailable(ctx context.Context, slug string, excludeEventID int64) (bool, error)
}
