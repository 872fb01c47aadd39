package relay_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/testutil"
)

func fixedNow() time.Time {
	return time.Date(2025, 4, 12, 20, 0, 0, 0, time.UTC)
}

// springRaid creates the canonical test event: Alice(1), Bob(2), Carol(3).
func springRaid(t *testing.T, store *testutil.MemStore) *relay.Event {
	t.Helper()
	ev := &relay.Event{
		Name:      "Spring Raid",
		Slug:      "spring-raid",
		Moderator: "mod-1",
		Submissions: relay.BuildSubmissions(0, []relay.SubmissionInput{
			{Name: "Alice", Twitch: "alice_tv"},
			{Name: "Bob", Twitch: "bob_tv"},
			{Name: "Carol", Twitch: "carol_tv"},
		}),
	}
	if err := store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	loaded, err := store.EventBySlug(context.Background(), "spring-raid")
	if err != nil {
		t.Fatalf("EventBySlug: %v", err)
	}
	return loaded
}

func newService(store *testutil.MemStore) *relay.Service {
	svc := relay.NewService(store)
	svc.Now = fixedNow
	return svc
}

func TestInitializeCursorPointsAtFirst(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)

	cur, err := svc.InitializeCursor(context.Background(), ev)
	if err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}
	first := ev.SubmissionByOrder(1)
	if cur.CurrentSubmissionID != first.ID {
		t.Errorf("cursor points at %d, want order-1 submission %d", cur.CurrentSubmissionID, first.ID)
	}
	if cur.RaidedAt != nil {
		t.Errorf("raidedAt = %v, want nil", cur.RaidedAt)
	}
}

func TestInitializeCursorIdempotent(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()

	first, err := svc.InitializeCursor(ctx, ev)
	if err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}
	// move the cursor, then re-initialize: must be a no-op
	if _, err := svc.Advance(ctx, ev, ev.SubmissionByOrder(2).ID, true); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	again, err := svc.InitializeCursor(ctx, ev)
	if err != nil {
		t.Fatalf("InitializeCursor (second): %v", err)
	}
	if again.CurrentSubmissionID == first.CurrentSubmissionID {
		t.Fatalf("expected cursor to stay at advanced position, got re-pointed to %d", again.CurrentSubmissionID)
	}
	if again.CurrentSubmissionID != ev.SubmissionByOrder(2).ID {
		t.Errorf("second initialize moved the cursor to %d", again.CurrentSubmissionID)
	}
}

func TestAdvanceMarkRaided(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	target := ev.SubmissionByOrder(3)
	if _, err := svc.Advance(ctx, ev, target.ID, true); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	cur, _ := store.Cursor(ctx, ev.ID)
	if cur.CurrentSubmissionID != target.ID {
		t.Errorf("cursor = %d, want %d", cur.CurrentSubmissionID, target.ID)
	}
	if cur.RaidedAt == nil || !cur.RaidedAt.Equal(fixedNow()) {
		t.Errorf("raidedAt = %v, want %v", cur.RaidedAt, fixedNow())
	}

	// rewind without marking raided clears the timestamp
	back := ev.SubmissionByOrder(1)
	if _, err := svc.Advance(ctx, ev, back.ID, false); err != nil {
		t.Fatalf("Advance (rewind): %v", err)
	}
	cur, _ = store.Cursor(ctx, ev.ID)
	if cur.CurrentSubmissionID != back.ID {
		t.Errorf("cursor = %d, want %d after rewind", cur.CurrentSubmissionID, back.ID)
	}
	if cur.RaidedAt != nil {
		t.Errorf("raidedAt = %v, want nil after rewind", cur.RaidedAt)
	}
}

func TestAdvanceRejectsForeignSubmission(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	other := &relay.Event{
		Name:      "Other Relay",
		Slug:      "other-relay",
		Moderator: "mod-2",
		Submissions: relay.BuildSubmissions(0, []relay.SubmissionInput{
			{Name: "Dave", Twitch: "dave_tv"},
		}),
	}
	if err := store.CreateEvent(context.Background(), other); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	_, err := svc.Advance(ctx, ev, other.Submissions[0].ID, true)
	if relay.KindOf(err) != relay.KindValidation {
		t.Errorf("Advance with foreign submission: kind = %q, want validation", relay.KindOf(err))
	}
}

func TestParticipantAdvanceHappyPath(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	var raidedTo string
	raid := func(ctx context.Context, to relay.Submission) error {
		raidedTo = to.Twitch
		return nil
	}
	alice := ev.SubmissionByLogin("alice_tv")
	next, err := svc.ParticipantAdvance(ctx, ev, alice, raid)
	if err != nil {
		t.Fatalf("ParticipantAdvance: %v", err)
	}
	if next.Twitch != "bob_tv" {
		t.Errorf("next = %q, want bob_tv", next.Twitch)
	}
	if raidedTo != "bob_tv" {
		t.Errorf("raid target = %q, want bob_tv", raidedTo)
	}
	cur, _ := store.Cursor(ctx, ev.ID)
	if cur.CurrentSubmissionID != next.ID {
		t.Errorf("cursor = %d, want %d", cur.CurrentSubmissionID, next.ID)
	}
	if cur.RaidedAt == nil {
		t.Error("raidedAt not set after successful raid")
	}
}

func TestParticipantAdvanceLastFails(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}
	before, _ := store.Cursor(ctx, ev.ID)

	calls := 0
	raid := func(ctx context.Context, to relay.Submission) error {
		calls++
		return nil
	}
	carol := ev.SubmissionByLogin("carol_tv")
	_, err := svc.ParticipantAdvance(ctx, ev, carol, raid)
	if relay.KindOf(err) != relay.KindNoNextParticipant {
		t.Errorf("kind = %q, want no_next_participant", relay.KindOf(err))
	}
	if calls != 0 {
		t.Errorf("raid called %d times for last participant, want 0", calls)
	}
	after, _ := store.Cursor(ctx, ev.ID)
	if *after != *before {
		t.Errorf("cursor mutated: %+v -> %+v", before, after)
	}
}

func TestParticipantAdvanceRaidFailureLeavesCursor(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}
	before, _ := store.Cursor(ctx, ev.ID)

	raid := func(ctx context.Context, to relay.Submission) error {
		return fmt.Errorf("helix: 500 internal server error")
	}
	alice := ev.SubmissionByLogin("alice_tv")
	_, err := svc.ParticipantAdvance(ctx, ev, alice, raid)
	if relay.KindOf(err) != relay.KindExternalCall {
		t.Errorf("kind = %q, want external_call", relay.KindOf(err))
	}
	after, _ := store.Cursor(ctx, ev.ID)
	if *after != *before {
		t.Errorf("cursor mutated after failed raid: %+v -> %+v", before, after)
	}
}

func TestParticipantAdvanceKeepsRelayErrorKind(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	raid := func(ctx context.Context, to relay.Submission) error {
		return relay.AuthExpired(errors.New("refresh also failed"))
	}
	alice := ev.SubmissionByLogin("alice_tv")
	_, err := svc.ParticipantAdvance(ctx, ev, alice, raid)
	if relay.KindOf(err) != relay.KindAuthExpired {
		t.Errorf("kind = %q, want auth_expired passed through", relay.KindOf(err))
	}
}

func TestParticipantSkipNeverRaids(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	alice := ev.SubmissionByLogin("alice_tv")
	next, err := svc.ParticipantSkip(ctx, ev, alice)
	if err != nil {
		t.Fatalf("ParticipantSkip: %v", err)
	}
	if next.Twitch != "bob_tv" {
		t.Errorf("next = %q, want bob_tv", next.Twitch)
	}
	cur, _ := store.Cursor(ctx, ev.ID)
	if cur.CurrentSubmissionID != next.ID {
		t.Errorf("cursor = %d, want %d", cur.CurrentSubmissionID, next.ID)
	}
	if cur.RaidedAt == nil {
		t.Error("skip should stamp raidedAt")
	}
}

func TestParticipantSkipLastFails(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()
	if _, err := svc.InitializeCursor(ctx, ev); err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}

	carol := ev.SubmissionByLogin("carol_tv")
	_, err := svc.ParticipantSkip(ctx, ev, carol)
	if relay.KindOf(err) != relay.KindNoNextParticipant {
		t.Errorf("kind = %q, want no_next_participant", relay.KindOf(err))
	}
}

// TestSpringRaidScenario walks the documented end-to-end scenario:
// initialize → Alice raids to Bob → moderator rewinds to Alice.
func TestSpringRaidScenario(t *testing.T) {
	store := testutil.NewMemStore()
	ev := springRaid(t, store)
	svc := newService(store)
	ctx := context.Background()

	cur, err := svc.InitializeCursor(ctx, ev)
	if err != nil {
		t.Fatalf("InitializeCursor: %v", err)
	}
	alice := ev.SubmissionByLogin("alice_tv")
	if cur.CurrentSubmissionID != alice.ID || cur.RaidedAt != nil {
		t.Fatalf("after initialize: cursor = %+v", cur)
	}

	next, err := svc.ParticipantAdvance(ctx, ev, alice, func(ctx context.Context, to relay.Submission) error { return nil })
	if err != nil {
		t.Fatalf("ParticipantAdvance: %v", err)
	}
	got, _ := store.Cursor(ctx, ev.ID)
	if got.CurrentSubmissionID != next.ID || got.RaidedAt == nil {
		t.Fatalf("after raid: cursor = %+v", got)
	}

	if _, err := svc.Advance(ctx, ev, alice.ID, false); err != nil {
		t.Fatalf("Advance (rewind): %v", err)
	}
	got, _ = store.Cursor(ctx, ev.ID)
	if got.CurrentSubmissionID != alice.ID || got.RaidedAt != nil {
		t.Fatalf("after rewind: cursor = %+v", got)
	}
}
