// Package testutil provides test fakes: an in-memory relay store and a mock
// Twitch Helix server.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cma2819/relaying-raids/relay"
)

// MemStore is an in-memory relay.Store for tests. It mirrors the Postgres
// store's semantics: dense order re-derivation, slug uniqueness, lazy cursor
// creation, cursor reset on submission replacement.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	events  map[int64]*relay.Event
	cursors map[int64]*relay.Cursor

	// SetCursorErr, when set, is returned by SetCursor to simulate a store
	// failure after a successful raid.
	SetCursorErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		events:  make(map[int64]*relay.Event),
		cursors: make(map[int64]*relay.Cursor),
	}
}

var _ relay.Store = (*MemStore)(nil)

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) slugTaken(slug string, excludeID int64) bool {
	for _, ev := range m.events {
		if ev.Slug == slug && ev.ID != excludeID {
			return true
		}
	}
	return false
}

func (m *MemStore) assignSubmissions(ev *relay.Event) {
	for i := range ev.Submissions {
		ev.Submissions[i].ID = m.id()
		ev.Submissions[i].EventID = ev.ID
		ev.Submissions[i].Order = i + 1
	}
}

func (m *MemStore) CreateEvent(_ context.Context, ev *relay.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTaken(ev.Slug, 0) {
		return relay.SlugConflict(ev.Slug)
	}
	ev.ID = m.id()
	m.assignSubmissions(ev)
	m.events[ev.ID] = copyEvent(ev)
	// no cursor yet: it is created lazily via InitCursor
	return nil
}

func (m *MemStore) UpdateEvent(_ context.Context, ev *relay.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; !ok {
		return relay.NotFound("event not found")
	}
	if m.slugTaken(ev.Slug, ev.ID) {
		return relay.SlugConflict(ev.Slug)
	}
	m.assignSubmissions(ev)
	cp := copyEvent(ev)
	m.events[ev.ID] = cp
	if cur, ok := m.cursors[ev.ID]; ok && len(cp.Submissions) > 0 {
		cur.CurrentSubmissionID = cp.Submissions[0].ID
		cur.RaidedAt = nil
	}
	return nil
}

func (m *MemStore) DeleteEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return relay.NotFound("event not found")
	}
	delete(m.events, id)
	delete(m.cursors, id)
	return nil
}

func (m *MemStore) EventBySlug(_ context.Context, slug string) (*relay.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.Slug == slug {
			return copyEvent(ev), nil
		}
	}
	return nil, relay.NotFound("event not found")
}

func (m *MemStore) EventByID(_ context.Context, id int64) (*relay.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, relay.NotFound("event not found")
	}
	return copyEvent(ev), nil
}

func (m *MemStore) EventsByModerator(_ context.Context, moderator string) ([]relay.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]relay.Event, 0)
	for _, ev := range m.events {
		if ev.Moderator == moderator {
			cp := copyEvent(ev)
			cp.Submissions = nil
			out = append(out, *cp)
		}
	}
	sortEventsDesc(out)
	return out, nil
}

func (m *MemStore) EventsByParticipant(_ context.Context, login string) ([]relay.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	login = strings.ToLower(login)
	out := make([]relay.Event, 0)
	for _, ev := range m.events {
		for _, sub := range ev.Submissions {
			if strings.ToLower(sub.Twitch) == login {
				cp := copyEvent(ev)
				cp.Submissions = nil
				out = append(out, *cp)
				break
			}
		}
	}
	sortEventsAsc(out)
	return out, nil
}

func (m *MemStore) Cursor(_ context.Context, eventID int64) (*relay.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.cursors[eventID]
	if !ok {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

func (m *MemStore) InitCursor(_ context.Context, eventID, submissionID int64) (*relay.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.cursors[eventID]; ok {
		cp := *cur
		return &cp, nil
	}
	cur := &relay.Cursor{EventID: eventID, CurrentSubmissionID: submissionID}
	m.cursors[eventID] = cur
	cp := *cur
	return &cp, nil
}

func (m *MemStore) SetCursor(_ context.Context, eventID, submissionID int64, raidedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetCursorErr != nil {
		return m.SetCursorErr
	}
	cur, ok := m.cursors[eventID]
	if !ok {
		return relay.NotFound("cursor not initialized")
	}
	cur.CurrentSubmissionID = submissionID
	cur.RaidedAt = raidedAt
	return nil
}

func (m *MemStore) SlugAvailable(_ context.Context, slug string, excludeEventID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.slugTaken(slug, excludeEventID), nil
}

func copyEvent(ev *relay.Event) *relay.Event {
	cp := *ev
	cp.Submissions = make([]relay.Submission, len(ev.Submissions))
	copy(cp.Submissions, ev.Submissions)
	return &cp
}

func sortEventsDesc(events []relay.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].ID > events[j].ID })
}

func sortEventsAsc(events []relay.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
}
