package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chriserin/ftrp/internal/reporting"
)

// ErrNotFound is returned for an unknown launch, item or log.
var ErrNotFound = errors.New("store: not found")

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

// Store is a reporting.Backend over sqlite.
type Store struct {
	db  *sql.DB
	seq atomic.Int64
}

var _ reporting.Backend = (*Store)(nil)

// New continues item numbering from what db already holds.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(seq) FROM items`).Scan(&max); err != nil {
		return nil, fmt.Errorf("reading item sequence: %w", err)
	}
	s.seq.Store(max.Int64)
	return s, nil
}

func (s *Store) StartLaunch(ctx context.Context, rq reporting.StartLaunchRQ) (string, error) {
	attrs, err := msgpack.Marshal(rq.Attributes)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO launches (id, name, description, mode, attributes, rerun, rerun_of, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rq.Name, rq.Description, string(rq.Mode), attrs, rq.Rerun, rq.RerunOf, formatTime(rq.StartTime))
	if err != nil {
		return "", fmt.Errorf("inserting launch: %w", err)
	}
	return id, nil
}

// FinishLaunch closes the launch. Without an explicit status the launch is
// FAILED when any counted item failed and PASSED otherwise.
func (s *Store) FinishLaunch(ctx context.Context, launchID string, rq reporting.FinishExecutionRQ) error {
	status := rq.Status
	if status == "" {
		var failed int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM items WHERE launch_id = ? AND has_stats = 1 AND status = ?`,
			launchID, string(reporting.StatusFailed)).Scan(&failed)
		if err != nil {
			return fmt.Errorf("deriving launch status: %w", err)
		}
		status = reporting.StatusPassed
		if failed > 0 {
			status = reporting.StatusFailed
		}
	}
	return s.finish(ctx, "launches", launchID, rq.EndTime, status)
}

func (s *Store) StartItem(ctx context.Context, launchID, parentID string, rq reporting.StartItemRQ) (string, error) {
	attrs, err := msgpack.Marshal(rq.Attributes)
	if err != nil {
		return "", fmt.Errorf("encoding attributes: %w", err)
	}
	params, err := msgpack.Marshal(rq.Parameters)
	if err != nil {
		return "", fmt.Errorf("encoding parameters: %w", err)
	}

	var parent sql.NullString
	if parentID != "" {
		parent = sql.NullString{String: parentID, Valid: true}
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, launch_id, parent_id, seq, name, description, type, code_ref,
			test_case_id, has_stats, attributes, parameters, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, launchID, parent, s.seq.Add(1), rq.Name, rq.Description, string(rq.Type), rq.CodeRef,
		rq.TestCaseID, rq.HasStats, attrs, params, formatTime(rq.StartTime))
	if err != nil {
		return "", fmt.Errorf("inserting item %q: %w", rq.Name, err)
	}
	return id, nil
}

// FinishItem closes an item. Without an explicit status the item takes the
// worst status of its children.
func (s *Store) FinishItem(ctx context.Context, itemID string, rq reporting.FinishExecutionRQ) error {
	status := rq.Status
	if status == "" {
		derived, err := s.childStatus(ctx, itemID)
		if err != nil {
			return err
		}
		status = derived
	}
	return s.finish(ctx, "items", itemID, rq.EndTime, status)
}

func (s *Store) childStatus(ctx context.Context, itemID string) (reporting.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT status FROM items WHERE parent_id = ? AND status IS NOT NULL`, itemID)
	if err != nil {
		return "", fmt.Errorf("deriving status of %s: %w", itemID, err)
	}
	defer rows.Close()

	seen := map[reporting.Status]bool{}
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return "", err
		}
		seen[reporting.Status(st)] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch {
	case seen[reporting.StatusFailed]:
		return reporting.StatusFailed, nil
	case seen[reporting.StatusPassed]:
		return reporting.StatusPassed, nil
	case seen[reporting.StatusSkipped]:
		return reporting.StatusSkipped, nil
	}
	return reporting.StatusPassed, nil
}

func (s *Store) finish(ctx context.Context, table, id string, end time.Time, status reporting.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET end_time = ?, status = ? WHERE id = ?`,
		formatTime(end), string(status), id)
	if err != nil {
		return fmt.Errorf("finishing %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) Log(ctx context.Context, launchID, itemID string, rq reporting.LogRQ) error {
	var item sql.NullString
	if itemID != "" {
		item = sql.NullString{String: itemID, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO logs (launch_id, item_id, time, level, message) VALUES (?, ?, ?, ?, ?)`,
		launchID, item, formatTime(rq.Time), string(rq.Level), rq.Message)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}

	if rq.File != nil {
		logID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		enc, err := encoder()
		if err != nil {
			return fmt.Errorf("compressing attachment: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO attachments (log_id, name, media_type, size, data) VALUES (?, ?, ?, ?, ?)`,
			logID, rq.File.Name, rq.File.MediaType, len(rq.File.Data), enc.EncodeAll(rq.File.Data, nil))
		if err != nil {
			return fmt.Errorf("inserting attachment: %w", err)
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
