package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/micro-ha/mwan3-status/internal/model"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (r *Repository) RecordPoll(ctx context.Context, run model.PollRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.At.IsZero() {
		run.At = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO poll_runs(id, router, at, duration_ms, success, interfaces, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Router, formatTime(run.At), run.DurationMS, run.Success, run.Interfaces, nullable(run.Error),
	)
	return err
}

func (r *Repository) RecordEvent(ctx context.Context, event model.InterfaceEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO interface_events(id, router, interface, previous, current, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Router, event.Interface, event.Previous, event.Current, formatTime(event.At),
	)
	return err
}

// ListPolls returns the most recent poll runs, newest first.
func (r *Repository) ListPolls(ctx context.Context, limit int) ([]model.PollRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, router, at, duration_ms, success, interfaces, error
		FROM poll_runs
		ORDER BY at DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.PollRun{}
	for rows.Next() {
		var (
			run    model.PollRun
			at     string
			errMsg sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Router, &at, &run.DurationMS, &run.Success, &run.Interfaces, &errMsg); err != nil {
			return nil, err
		}
		run.At = parseTime(at)
		run.Error = errMsg.String
		result = append(result, run)
	}
	return result, rows.Err()
}

// ListEvents returns interface transitions, newest first. An empty iface
// matches every interface.
func (r *Repository) ListEvents(ctx context.Context, iface string, limit int) ([]model.InterfaceEvent, error) {
	query := `SELECT id, router, interface, previous, current, at FROM interface_events`
	args := []any{}
	if iface != "" {
		query += ` WHERE interface = ?`
		args = append(args, iface)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.InterfaceEvent{}
	for rows.Next() {
		var (
			event model.InterfaceEvent
			at    string
		)
		if err := rows.Scan(&event.ID, &event.Router, &event.Interface, &event.Previous, &event.Current, &at); err != nil {
			return nil, err
		}
		event.At = parseTime(at)
		result = append(result, event)
	}
	return result, rows.Err()
}

// Prune deletes history recorded before cutoff and returns the number of rows removed.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for _, stmt := range []string{
		`DELETE FROM poll_runs WHERE at < ?`,
		`DELETE FROM interface_events WHERE at < ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, formatTime(cutoff))
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
