package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chriserin/ftrp/internal/reporting"
)

type Launch struct {
	ID          string                `yaml:"id" json:"id"`
	Name        string                `yaml:"name" json:"name"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Mode        reporting.Mode        `yaml:"mode" json:"mode"`
	Attributes  []reporting.Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Rerun       bool                  `yaml:"rerun,omitempty" json:"rerun,omitempty"`
	RerunOf     string                `yaml:"rerunOf,omitempty" json:"rerunOf,omitempty"`
	Start       time.Time             `yaml:"start" json:"start"`
	End         time.Time             `yaml:"end,omitempty" json:"end,omitempty"`
	Status      reporting.Status      `yaml:"status,omitempty" json:"status,omitempty"`
}

type Item struct {
	ID          string                `yaml:"id" json:"id"`
	ParentID    string                `yaml:"-" json:"-"`
	Name        string                `yaml:"name" json:"name"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Type        reporting.ItemType    `yaml:"type" json:"type"`
	CodeRef     string                `yaml:"codeRef,omitempty" json:"codeRef,omitempty"`
	TestCaseID  string                `yaml:"testCaseId,omitempty" json:"testCaseId,omitempty"`
	HasStats    bool                  `yaml:"hasStats" json:"hasStats"`
	Attributes  []reporting.Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Parameters  []reporting.Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Start       time.Time             `yaml:"start" json:"start"`
	End         time.Time             `yaml:"end,omitempty" json:"end,omitempty"`
	Status      reporting.Status      `yaml:"status,omitempty" json:"status,omitempty"`
}

type Attachment struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	MediaType string `yaml:"mediaType" json:"mediaType"`
	Size      int    `yaml:"size" json:"size"`
}

type Log struct {
	ID         int64              `yaml:"id" json:"id"`
	Time       time.Time          `yaml:"time" json:"time"`
	Level      reporting.LogLevel `yaml:"level" json:"level"`
	Message    string             `yaml:"message" json:"message"`
	Attachment *Attachment        `yaml:"attachment,omitempty" json:"attachment,omitempty"`
}

type StatusCount struct {
	Status reporting.Status
	Count  int
}

// Launches lists launches, newest first.
func (s *Store) Launches(ctx context.Context) ([]Launch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, mode, attributes, rerun, rerun_of, start_time, end_time, status
		FROM launches
		ORDER BY start_time DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying launches: %w", err)
	}
	defer rows.Close()

	var out []Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Launch finds a launch by id or unique id prefix. "latest" names the most
// recently started launch.
func (s *Store) Launch(ctx context.Context, ref string) (Launch, error) {
	query := `
		SELECT id, name, description, mode, attributes, rerun, rerun_of, start_time, end_time, status
		FROM launches WHERE id LIKE ? || '%' ORDER BY start_time DESC, rowid DESC LIMIT 2`
	args := []any{ref}
	if ref == "latest" {
		query = `
			SELECT id, name, description, mode, attributes, rerun, rerun_of, start_time, end_time, status
			FROM launches ORDER BY start_time DESC, rowid DESC LIMIT 1`
		args = nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Launch{}, fmt.Errorf("querying launch: %w", err)
	}
	defer rows.Close()

	var found []Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return Launch{}, err
		}
		found = append(found, l)
	}
	if err := rows.Err(); err != nil {
		return Launch{}, err
	}
	switch len(found) {
	case 0:
		return Launch{}, fmt.Errorf("%w: launch %s", ErrNotFound, ref)
	case 1:
		return found[0], nil
	}
	return Launch{}, fmt.Errorf("launch prefix %s is ambiguous", ref)
}

// Items lists a launch's items by start time. Items started at the same
// instant keep the order they were written in.
func (s *Store) Items(ctx context.Context, launchID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, name, description, type, code_ref, test_case_id, has_stats,
			attributes, parameters, start_time, end_time, status
		FROM items WHERE launch_id = ? ORDER BY start_time, seq`, launchID)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it            Item
			parent        sql.NullString
			typ           string
			attrs, params []byte
			start, end    sql.NullString
			status        sql.NullString
		)
		if err := rows.Scan(&it.ID, &parent, &it.Name, &it.Description, &typ, &it.CodeRef, &it.TestCaseID,
			&it.HasStats, &attrs, &params, &start, &end, &status); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.ParentID = parent.String
		it.Type = reporting.ItemType(typ)
		it.Status = reporting.Status(status.String)
		it.Start, it.End = parseTime(start), parseTime(end)
		if err := unmarshalBlob(attrs, &it.Attributes); err != nil {
			return nil, err
		}
		if err := unmarshalBlob(params, &it.Parameters); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// StatusCounts counts the finished leaf items that carry statistics.
func (s *Store) StatusCounts(ctx context.Context, launchID string) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(i.status, 'IN_PROGRESS') AS st, COUNT(*) AS cnt
		FROM items i
		WHERE i.launch_id = ? AND i.has_stats = 1
			AND NOT EXISTS (SELECT 1 FROM items c WHERE c.parent_id = i.id AND c.has_stats = 1)
		GROUP BY st
		ORDER BY cnt DESC, st`, launchID)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		var st string
		if err := rows.Scan(&st, &sc.Count); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		sc.Status = reporting.Status(st)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Logs lists the logs of an item, or of the launch itself when itemID is
// empty.
func (s *Store) Logs(ctx context.Context, launchID, itemID string) ([]Log, error) {
	query := `
		SELECT l.id, l.time, l.level, l.message, a.name, a.media_type, a.size
		FROM logs l LEFT JOIN attachments a ON a.log_id = l.id
		WHERE l.launch_id = ? AND l.item_id = ?
		ORDER BY l.time, l.id`
	args := []any{launchID, itemID}
	if itemID == "" {
		query = `
			SELECT l.id, l.time, l.level, l.message, a.name, a.media_type, a.size
			FROM logs l LEFT JOIN attachments a ON a.log_id = l.id
			WHERE l.launch_id = ? AND l.item_id IS NULL
			ORDER BY l.time, l.id`
		args = args[:1]
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			l         Log
			at        sql.NullString
			level     string
			name, typ sql.NullString
			size      sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &at, &level, &l.Message, &name, &typ, &size); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		l.Time = parseTime(at)
		l.Level = reporting.LogLevel(level)
		if typ.Valid {
			l.Attachment = &Attachment{Name: name.String, MediaType: typ.String, Size: int(size.Int64)}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AttachmentData returns the decompressed payload attached to a log.
func (s *Store) AttachmentData(ctx context.Context, logID int64) (Attachment, []byte, error) {
	var (
		a    Attachment
		blob []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, media_type, size, data FROM attachments WHERE log_id = ?`, logID).
		Scan(&a.Name, &a.MediaType, &a.Size, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, nil, fmt.Errorf("%w: attachment of log %d", ErrNotFound, logID)
	}
	if err != nil {
		return Attachment{}, nil, err
	}
	dec, err := decoder()
	if err != nil {
		return Attachment{}, nil, fmt.Errorf("decompressing attachment: %w", err)
	}
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return Attachment{}, nil, fmt.Errorf("decompressing attachment: %w", err)
	}
	return a, data, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLaunch(row scanner) (Launch, error) {
	var (
		l          Launch
		mode       string
		attrs      []byte
		start, end sql.NullString
		status     sql.NullString
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &mode, &attrs, &l.Rerun, &l.RerunOf,
		&start, &end, &status); err != nil {
		return Launch{}, fmt.Errorf("scanning launch: %w", err)
	}
	l.Mode = reporting.Mode(mode)
	l.Status = reporting.Status(status.String)
	l.Start, l.End = parseTime(start), parseTime(end)
	if err := unmarshalBlob(attrs, &l.Attributes); err != nil {
		return Launch{}, err
	}
	return l, nil
}

func unmarshalBlob(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding blob: %w", err)
	}
	return nil
}
