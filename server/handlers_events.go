package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/telemetry"
)

// HandleEvents serves the moderator event collection: GET lists the events
// the logged-in user moderates, POST registers a new one.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		u := h.requireUser(w, r)
		if u == nil {
			return
		}
		events, err := h.store.EventsByModerator(r.Context(), u.TwitchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	case http.MethodPost:
		h.handleEventCreate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleEventCreate(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r)
	if u == nil {
		return
	}
	var in relay.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	ev := &relay.Event{
		Name:        strings.TrimSpace(in.Name),
		Slug:        strings.TrimSpace(in.Slug),
		Moderator:   u.TwitchID,
		Submissions: relay.BuildSubmissions(0, in.Submissions),
	}
	if !h.requireSlugAvailable(w, r, ev.Slug, 0) {
		return
	}
	if err := h.store.CreateEvent(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("event created",
		slog.String("slug", ev.Slug), slog.String("moderator", u.Login), slog.Int("participants", len(ev.Submissions)))
	writeJSON(w, http.StatusCreated, ev)
}

// HandleEventsDispatcher routes /events/{slug}[/...] requests.
func (h *Handlers) HandleEventsDispatcher(w http.ResponseWriter, r *http.Request) {
	// crude routing
	path := strings.TrimPrefix(r.URL.Path, "/events/")
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
		h.handleEventDetail(w, r, slug)
	case tail == "progress":
		h.handleEventProgress(w, r, slug)
	case tail == "live":
		h.handleEventLive(w, r, slug)
	case tail == "import":
		h.handleEventImport(w, r, slug)
	default:
		http.NotFound(w, r)
	}
}

// handleEventDetail serves GET (public detail), PUT (wholesale replacement)
// and DELETE for a single event.
func (h *Handlers) handleEventDetail(w http.ResponseWriter, r *http.Request, slug string) {
	ev, err := h.store.EventBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, ev)
	case http.MethodPut:
		u := h.requireUser(w, r)
		if u == nil || !h.requireModerator(w, r, ev, u) {
			return
		}
		var in relay.EventInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := in.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		// the event keeps its own slug; only a rename into another event's
		// slug conflicts
		if !h.requireSlugAvailable(w, r, strings.TrimSpace(in.Slug), ev.ID) {
			return
		}
		ev.Name = strings.TrimSpace(in.Name)
		ev.Slug = strings.TrimSpace(in.Slug)
		ev.Submissions = relay.BuildSubmissions(ev.ID, in.Submissions)
		if err := h.store.UpdateEvent(r.Context(), ev); err != nil {
			writeError(w, r, err)
			return
		}
		updated, err := h.store.EventByID(r.Context(), ev.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		u := h.requireUser(w, r)
		if u == nil || !h.requireModerator(w, r, ev, u) {
			return
		}
		if err := h.store.DeleteEvent(r.Context(), ev.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// progressRequest is the body of POST /events/{slug}/progress.
type progressRequest struct {
	// Action is "init" or "advance".
	Action string `json:"action"`
	// SubmissionID is the advance target (any submission of the event).
	SubmissionID int64 `json:"submissionId"`
	// MarkRaided stamps raided_at on the target when advancing.
	MarkRaided bool `json:"markRaided"`
}

// handleEventProgress serves the moderator progress view (GET, initializing
// the cursor on first load) and the cursor controls (POST).
func (h *Handlers) handleEventProgress(w http.ResponseWriter, r *http.Request, slug string) {
	ev, err := h.store.EventBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		u := h.requireUser(w, r)
		if u == nil || !h.requireModerator(w, r, ev, u) {
			return
		}
		cur, err := h.store.Cursor(r.Context(), ev.ID)
		if err == nil && cur == nil {
			cur, err = h.svc.InitializeCursor(r.Context(), ev)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, relay.Progress(ev, cur))
	case http.MethodPost:
		u := h.requireUser(w, r)
		if u == nil || !h.requireModerator(w, r, ev, u) {
			return
		}
		var req progressRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var cur *relay.Cursor
		switch req.Action {
		case "init":
			cur, err = h.svc.InitializeCursor(r.Context(), ev)
		case "advance":
			cur, err = h.svc.Advance(r.Context(), ev, req.SubmissionID, req.MarkRaided)
		default:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "action must be init or advance"})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, relay.Progress(ev, cur))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// liveResponse augments the spectator view with the channel's live status.
type liveResponse struct {
	relay.LiveView
	Live bool `json:"live"`
}

// handleEventLive serves the public spectator view of the relay.
func (h *Handlers) handleEventLive(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ev, err := h.store.EventBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cur, err := h.store.Cursor(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := liveResponse{LiveView: relay.Live(ev, cur)}
	if resp.Current != nil && h.helix != nil && h.helix.AppTokens != nil {
		live, err := h.helix.StreamLive(r.Context(), resp.Current.Twitch)
		if err != nil {
			// live status is best-effort; the view still renders without it
			telemetry.LoggerWithCorr(r.Context()).Warn("live check failed",
				slog.String("login", resp.Current.Twitch), slog.Any("err", err))
		} else {
			resp.Live = live
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// importRequest is the body of POST /events/{slug}/import.
type importRequest struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Range         string `json:"range"`
}

// handleEventImport replaces the event's participant list with rows read from
// a Google Sheet. Moderator only; 503 when the import integration is off.
func (h *Handlers) handleEventImport(w http.ResponseWriter, r *http.Request, slug string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sheets == nil {
		http.Error(w, "sheets import not configured", http.StatusServiceUnavailable)
		return
	}
	ev, err := h.store.EventBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := h.requireUser(w, r)
	if u == nil || !h.requireModerator(w, r, ev, u) {
		return
	}
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SpreadsheetID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "spreadsheetId required"})
		return
	}
	inputs, err := h.sheets.Fetch(r.Context(), req.SpreadsheetID, req.Range)
	if err != nil {
		writeError(w, r, relay.ExternalCall(err))
		return
	}
	in := relay.EventInput{Name: ev.Name, Slug: ev.Slug, Submissions: inputs}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	ev.Submissions = relay.BuildSubmissions(ev.ID, inputs)
	if err := h.store.UpdateEvent(r.Context(), ev); err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.Inc(telemetry.SheetImports)
	updated, err := h.store.EventByID(r.Context(), ev.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("participants imported",
		slog.String("slug", ev.Slug), slog.Int("count", len(updated.Submissions)))
	writeJSON(w, http.StatusOK, updated)
}
