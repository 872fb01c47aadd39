package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cma2819/relaying-raids/db"
	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/telemetry"
)

// HandleParticipateList lists the events where the logged-in user appears as
// a participant.
func (h *Handlers) HandleParticipateList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u := h.requireUser(w, r)
	if u == nil {
		return
	}
	events, err := h.store.EventsByParticipant(r.Context(), u.Login)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleParticipateDispatcher routes /participate/{slug}[/...] requests.
func (h *Handlers) HandleParticipateDispatcher(w http.ResponseWriter, r *http.Request) {
	// crude routing
	path := strings.TrimPrefix(r.URL.Path, "/participate/")
	parts := strings.Split(path, "/")
	slug := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	switch {
	case slug == "" || slug == "/":
		http.NotFound(w, r)
	case tail == "":
		h.handleParticipantView(w, r, slug)
	case tail == "raid":
		h.handleParticipantRaid(w, r, slug)
	case tail == "skip":
		h.handleParticipantSkip(w, r, slug)
	default:
		http.NotFound(w, r)
	}
}

// participantContext resolves the event, the acting user, and the user's own
// submission. Writes the error response and returns ok=false on any failure.
func (h *Handlers) participantContext(w http.ResponseWriter, r *http.Request, slug string) (*relay.Event, *db.User, *relay.Submission, bool) {
	ev, err := h.store.EventBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, err)
		return nil, nil, nil, false
	}
	u := h.requireUser(w, r)
	if u == nil {
		return nil, nil, nil, false
	}
	self := ev.SubmissionByLogin(u.Login)
	if self == nil {
		writeError(w, r, relay.Unauthorized("you are not a participant of this relay"))
		return nil, nil, nil, false
	}
	return ev, u, self, true
}

// handleParticipantView serves the participant's own projection of the relay.
func (h *Handlers) handleParticipantView(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ev, _, self, ok := h.participantContext(w, r, slug)
	if !ok {
		return
	}
	cur, err := h.store.Cursor(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relay.Participant(ev, cur, self))
}

// requireCurrentTurn verifies the acting submission is the one the cursor
// points at; only the streamer on air may hand the relay off.
func (h *Handlers) requireCurrentTurn(w http.ResponseWriter, r *http.Request, ev *relay.Event, self *relay.Submission) bool {
	cur, err := h.store.Cursor(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	current := cur.Current(ev)
	if current == nil || current.ID != self.ID {
		writeError(w, r, relay.Unauthorized("it is not your turn in the relay"))
		return false
	}
	return true
}

// handleParticipantRaid starts a raid to the next participant and advances
// the cursor once the raid succeeds.
func (h *Handlers) handleParticipantRaid(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ev, u, self, ok := h.participantContext(w, r, slug)
	if !ok {
		return
	}
	if !h.requireCurrentTurn(w, r, ev, self) {
		return
	}

	raid := func(ctx context.Context, to relay.Submission) error {
		return h.auth.WithFreshToken(ctx, u, func(token string) error {
			return h.helix.RaidByLogin(ctx, token, u.TwitchID, to.Twitch)
		})
	}
	next, err := h.svc.ParticipantAdvance(r.Context(), ev, self, raid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.announcer.Handoff(ev, *self, *next)
	if ev.Next(next) == nil {
		h.announcer.Finished(ev, *next)
	}
	telemetry.LoggerWithCorr(r.Context()).Info("raid handoff",
		slog.String("slug", ev.Slug), slog.String("from", self.Twitch), slog.String("to", next.Twitch))

	cur, err := h.store.Cursor(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relay.Participant(ev, cur, self))
}

// handleParticipantSkip advances to the next participant without raiding.
func (h *Handlers) handleParticipantSkip(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ev, _, self, ok := h.participantContext(w, r, slug)
	if !ok {
		return
	}
	if !h.requireCurrentTurn(w, r, ev, self) {
		return
	}
	next, err := h.svc.ParticipantSkip(r.Context(), ev, self)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.announcer.Skip(ev, *self, *next)
	telemetry.LoggerWithCorr(r.Context()).Info("relay skip",
		slog.String("slug", ev.Slug), slog.String("from", self.Twitch), slog.String("to", next.Twitch))

	cur, err := h.store.Cursor(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relay.Participant(ev, cur, self))
}
