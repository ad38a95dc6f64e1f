package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stave/internal/blockspec"
	"stave/internal/services"
)

// timeLayout has a fixed-width fraction so stored timestamps sort
// lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sessionColumns = `id, source_path, options_json, measure_range, page, mount, created_at, updated_at`

// Create registers a new session on page 1 with a fresh identifier.
func (r *Registry) Create(ctx context.Context, in Inputs) (*Session, error) {
	if strings.TrimSpace(in.SourcePath) == "" {
		return nil, services.Wrap(services.ErrValidation, "session", "create", "source path required", nil)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	options, err := encodeOptions(in.Options)
	if err != nil {
		return nil, err
	}
	timestamp := time.Now().UTC().Format(timeLayout)

	_, err = r.execWithRetry(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		id.String(),
		in.SourcePath,
		options,
		nullableString(in.MeasureRange),
		nullableString(in.Mount),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return r.Get(ctx, id.String())
}

// Get fetches a session. It returns nil, nil when the id is unknown.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// Update applies patch and returns the updated session. Unknown ids yield
// services.ErrNotFound.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (*Session, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if patch.Options != nil {
		options, err := encodeOptions(patch.Options)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "options_json = ?")
		args = append(args, options)
	}
	if patch.MeasureRange != nil {
		sets = append(sets, "measure_range = ?")
		args = append(args, nullableString(*patch.MeasureRange))
	}
	if patch.Page != nil {
		if *patch.Page < 1 {
			return nil, services.Wrap(services.ErrValidation, "session", "update", "page numbers start at 1", nil)
		}
		sets = append(sets, "page = ?")
		args = append(args, *patch.Page)
	}
	if patch.Mount != nil {
		sets = append(sets, "mount = ?")
		args = append(args, nullableString(*patch.Mount))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout), id)

	res, err := r.execWithRetry(ctx, `UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, services.Wrap(services.ErrNotFound, "session", "update", id, nil)
	}
	return r.Get(ctx, id)
}

// Evict removes a session. Evicting an unknown id is not an error.
func (r *Registry) Evict(ctx context.Context, id string) error {
	if _, err := r.execWithRetry(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("evict session: %w", err)
	}
	return nil
}

// EvictMount removes every session displayed in mount and returns their ids.
func (r *Registry) EvictMount(ctx context.Context, mount string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM sessions WHERE mount = ?`, mount)
	if err != nil {
		return nil, fmt.Errorf("query mount sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := r.execWithRetry(ctx, `DELETE FROM sessions WHERE mount = ?`, mount); err != nil {
		return nil, fmt.Errorf("evict mount sessions: %w", err)
	}
	return ids, nil
}

// Prune removes sessions not updated within olderThan and returns how many
// were removed. A non-positive olderThan removes nothing.
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := r.execWithRetry(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

// List returns every session ordered by creation.
func (r *Registry) List(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Count returns the number of registered sessions.
func (r *Registry) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		s            Session
		optionsRaw   string
		measureRange sql.NullString
		mount        sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&s.ID, &s.SourcePath, &optionsRaw, &measureRange, &s.Page, &mount, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	s.MeasureRange = measureRange.String
	s.Mount = mount.String
	s.Options = blockspec.Options{}
	if optionsRaw != "" {
		if err := json.Unmarshal([]byte(optionsRaw), &s.Options); err != nil {
			return nil, fmt.Errorf("decode options for %s: %w", s.ID, err)
		}
	}
	var err error
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &s, nil
}

func encodeOptions(opts blockspec.Options) (string, error) {
	if opts == nil {
		return "{}", nil
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "session", "encode options", "", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
