package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/bimview/internal/log"
)

var (
	// ErrNotFound is returned for a key with no stored payload.
	ErrNotFound = errors.New("sqlite: fragments not found")
	// ErrChecksumMismatch is returned when a stored payload does not match
	// its digest.
	ErrChecksumMismatch = errors.New("sqlite: fragments checksum mismatch")
)

const entryColumns = `key, model_id, fragments_count, source, size, stored_size, digest, stored_at`

// FragmentsRepository stores fragments payloads by key.
type FragmentsRepository struct {
	db  *sql.DB
	now func() time.Time
}

func newFragmentsRepository(db *sql.DB) *FragmentsRepository {
	return &FragmentsRepository{db: db, now: time.Now}
}

// Put stores r, replacing any payload under the same key. An empty key is
// LastKey and a zero StoredAt is now.
func (r *FragmentsRepository) Put(ctx context.Context, rec Record) error {
	if rec.Key == "" {
		rec.Key = LastKey
	}
	if rec.ModelID == "" {
		return errors.New("sqlite: fragments record without model id")
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = r.now()
	}
	model := toFragmentsModel(&rec)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fragments (`+entryColumns+`, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			model_id = excluded.model_id,
			fragments_count = excluded.fragments_count,
			source = excluded.source,
			size = excluded.size,
			stored_size = excluded.stored_size,
			digest = excluded.digest,
			stored_at = excluded.stored_at,
			payload = excluded.payload`,
		model.Key, model.ModelID, model.FragmentsCount, model.Source,
		model.Size, model.StoredSize, model.Digest, model.StoredAt, model.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store fragments: %w", err)
	}
	log.Debug(log.CatDB, "Fragments stored",
		"key", model.Key, "model", model.ModelID, "size", model.Size, "stored", model.StoredSize)
	return nil
}

// Get loads and verifies the payload under key.
func (r *FragmentsRepository) Get(ctx context.Context, key string) (*Record, error) {
	var m FragmentsModel
	err := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`, payload FROM fragments WHERE key = ?`, key,
	).Scan(&m.Key, &m.ModelID, &m.FragmentsCount, &m.Source,
		&m.Size, &m.StoredSize, &m.Digest, &m.StoredAt, &m.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fragments: %w", err)
	}
	return m.toRecord()
}

// Last loads the most recently opened model.
func (r *FragmentsRepository) Last(ctx context.Context) (*Record, error) {
	return r.Get(ctx, LastKey)
}

// Stat describes the payload under key.
func (r *FragmentsRepository) Stat(ctx context.Context, key string) (*Entry, error) {
	m, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM fragments WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat fragments: %w", err)
	}
	e := m.toEntry()
	return &e, nil
}

// List describes every stored payload, newest first.
func (r *FragmentsRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM fragments ORDER BY stored_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		m, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fragments: %w", err)
		}
		out = append(out, m.toEntry())
	}
	return out, rows.Err()
}

func scanEntry(scanner interface{ Scan(...any) error }) (*FragmentsModel, error) {
	var m FragmentsModel
	err := scanner.Scan(&m.Key, &m.ModelID, &m.FragmentsCount, &m.Source,
		&m.Size, &m.StoredSize, &m.Digest, &m.StoredAt)
	return &m, err
}

// Delete removes key. A missing key is not an error.
func (r *FragmentsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fragments WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	return nil
}

// Clear removes every payload and returns how many there were.
func (r *FragmentsRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fragments`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear fragments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear fragments: %w", err)
	}
	return n, nil
}
