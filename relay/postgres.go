package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// submissionInsertBatch caps how many submissions go into a single INSERT.
// Larger relays are written in multiple statements inside the transaction.
const submissionInsertBatch = 20

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store on top of database/sql with the pgx driver.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

var _ Store = (*PostgresStore)(nil)

// isSlugConflict reports whether err is a unique violation on the slug index.
func isSlugConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return strings.Contains(pgErr.ConstraintName, "slug")
	}
	return false
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *Event) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	err = tx.QueryRowContext(ctx,
		`INSERT INTO relay_events(name, slug, moderator) VALUES($1,$2,$3) RETURNING id`,
		ev.Name, ev.Slug, ev.Moderator).Scan(&ev.ID)
	if err != nil {
		if isSlugConflict(err) {
			return SlugConflict(ev.Slug)
		}
		return fmt.Errorf("insert event: %w", err)
	}

	// No cursor row yet: it is created lazily when the moderator first opens
	// the progress view, so spectators see "not started" until then.
	if err := insertSubmissions(ctx, tx, ev.ID, ev.Submissions); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, ev *Event) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE relay_events SET name=$1, slug=$2 WHERE id=$3`,
		ev.Name, ev.Slug, ev.ID)
	if err != nil {
		if isSlugConflict(err) {
			return SlugConflict(ev.Slug)
		}
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("event not found")
	}

	// Deleting the submissions cascades away the cursor row too, so remember
	// whether a relay was in progress before rewriting the list.
	var hadCursor bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM relay_cursors WHERE event_id=$1)`, ev.ID).Scan(&hadCursor); err != nil {
		return fmt.Errorf("check cursor: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM relay_submissions WHERE event_id=$1`, ev.ID); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	if err := insertSubmissions(ctx, tx, ev.ID, ev.Submissions); err != nil {
		return err
	}

	// A relay in progress restarts at the new first participant; the old
	// submission ids are gone and so is any raid stamp.
	if hadCursor && len(ev.Submissions) > 0 {
		_, err = tx.ExecContext(ctx, `
        INSERT INTO relay_cursors(event_id, current_submission_id, raided_at)
        VALUES($1,$2,NULL)
        ON CONFLICT(event_id) DO UPDATE SET current_submission_id=EXCLUDED.current_submission_id, raided_at=NULL`,
			ev.ID, ev.Submissions[0].ID)
		if err != nil {
			return fmt.Errorf("reset cursor: %w", err)
		}
	}
	return tx.Commit()
}

// insertSubmissions writes submissions in batches, re-deriving the dense
// 1..N order from slice position regardless of what the caller set.
func insertSubmissions(ctx context.Context, tx *sql.Tx, eventID int64, subs []Submission) error {
	for i := range subs {
		subs[i].EventID = eventID
		subs[i].Order = i + 1
	}
	for start := 0; start < len(subs); start += submissionInsertBatch {
		end := start + submissionInsertBatch
		if end > len(subs) {
			end = len(subs)
		}
		batch := subs[start:end]
		var sb strings.Builder
		sb.WriteString(`INSERT INTO relay_submissions(event_id, name, twitch, "order") VALUES`)
		args := make([]any, 0, len(batch)*4)
		for i, sub := range batch {
			if i > 0 {
				sb.WriteString(",")
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4)
			args = append(args, sub.EventID, sub.Name, sub.Twitch, sub.Order)
		}
		sb.WriteString(" RETURNING id")
		rows, err := tx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return fmt.Errorf("insert submissions: %w", err)
		}
		idx := start
		for rows.Next() {
			if err := rows.Scan(&subs[idx].ID); err != nil {
				closeRows(rows)
				return fmt.Errorf("scan submission id: %w", err)
			}
			idx++
		}
		closeRows(rows)
		if err := rows.Err(); err != nil {
			return fmt.Errorf("insert submissions: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM relay_events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("event not found")
	}
	return nil
}

func (s *PostgresStore) EventBySlug(ctx context.Context, slug string) (*Event, error) {
	return s.loadEvent(ctx, `SELECT id, name, slug, moderator FROM relay_events WHERE slug=$1`, slug)
}

func (s *PostgresStore) EventByID(ctx context.Context, id int64) (*Event, error) {
	return s.loadEvent(ctx, `SELECT id, name, slug, moderator FROM relay_events WHERE id=$1`, id)
}

func (s *PostgresStore) loadEvent(ctx context.Context, query string, arg any) (*Event, error) {
	var ev Event
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(&ev.ID, &ev.Name, &ev.Slug, &ev.Moderator)
	if err == sql.ErrNoRows {
		return nil, NotFound("event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, event_id, name, twitch, "order" FROM relay_submissions WHERE event_id=$1 ORDER BY "order" ASC`,
		ev.ID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer closeRows(rows)
	for rows.Next() {
		var sub Submission
		if err := rows.Scan(&sub.ID, &sub.EventID, &sub.Name, &sub.Twitch, &sub.Order); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		ev.Submissions = append(ev.Submissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	return &ev, nil
}

func (s *PostgresStore) EventsByModerator(ctx context.Context, moderator string) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, slug, moderator FROM relay_events WHERE moderator=$1 ORDER BY id DESC`, moderator)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer closeRows(rows)
	return scanEvents(rows)
}

func (s *PostgresStore) EventsByParticipant(ctx context.Context, login string) ([]Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT DISTINCT e.id, e.name, e.slug, e.moderator
        FROM relay_events e
        INNER JOIN relay_submissions s ON e.id = s.event_id
        WHERE s.twitch = $1
        ORDER BY e.id`, strings.ToLower(login))
	if err != nil {
		return nil, fmt.Errorf("list participating events: %w", err)
	}
	defer closeRows(rows)
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := make([]Event, 0)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Slug, &ev.Moderator); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Cursor(ctx context.Context, eventID int64) (*Cursor, error) {
	var cur Cursor
	err := s.DB.QueryRowContext(ctx,
		`SELECT event_id, current_submission_id, raided_at FROM relay_cursors WHERE event_id=$1`,
		eventID).Scan(&cur.EventID, &cur.CurrentSubmissionID, &cur.RaidedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	return &cur, nil
}

func (s *PostgresStore) InitCursor(ctx context.Context, eventID, submissionID int64) (*Cursor, error) {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO relay_cursors(event_id, current_submission_id, raided_at)
        VALUES($1,$2,NULL)
        ON CONFLICT(event_id) DO NOTHING`, eventID, submissionID)
	if err != nil {
		return nil, fmt.Errorf("init cursor: %w", err)
	}
	return s.Cursor(ctx, eventID)
}

func (s *PostgresStore) SetCursor(ctx context.Context, eventID, submissionID int64, raidedAt *time.Time) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE relay_cursors SET current_submission_id=$1, raided_at=$2 WHERE event_id=$3`,
		submissionID, raidedAt, eventID)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("cursor not initialized")
	}
	return nil
}

func (s *PostgresStore) SlugAvailable(ctx context.Context, slug string, excludeEventID int64) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM relay_events WHERE slug=$1 AND id != $2)`,
		slug, excludeEventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return !exists, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		slog.Warn("tx rollback failed", slog.Any("err", err))
	}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", slog.Any("err", err))
	}
}
