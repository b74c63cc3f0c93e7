package enroll

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/errors"
)

//go:embed schema.sql
var schema string

// Record is one enrolled template.
type Record struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Template  []byte    `json:"template"`
	Quality   int       `json:"quality"`
}

// Store persists enrolled templates in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.InvalidInput(errors.PhaseStore, "storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Enroll stores the template from a successful capture under subject.
func (s *Store) Enroll(ctx context.Context, subject string, res bridge.CaptureResult) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Record{}, errors.InvalidInput(errors.PhaseStore, "subject is required")
	}
	if !res.Success {
		return Record{}, errors.New(errors.PhaseStore, errors.KindInvalidInput).
			Value(res.ErrorCode).
			Detail("cannot enroll a failed capture (errorCode %d)", res.ErrorCode).
			Build()
	}
	template, err := res.Decode()
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:        uuid.NewString(),
		Subject:   subject,
		Template:  template,
		Quality:   res.Quality,
		CreatedAt: fromMillis(toMillis(s.now())),
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO enrollments (id, subject, template, quality, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Subject,
		rec.Template,
		rec.Quality,
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return Record{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "insert enrollment")
	}
	return rec, nil
}

// Get returns one enrollment by ID.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, subject, template, quality, created_at
		   FROM enrollments
		  WHERE id = ?`,
		strings.TrimSpace(id),
	)
	rec, err := scanRecord(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Record{}, errors.NotFound(errors.PhaseStore, "enrollment", id)
		}
		return Record{}, fmt.Errorf("get enrollment: %w", err)
	}
	return rec, nil
}

// List returns every enrollment, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, subject, template, quality, created_at
		   FROM enrollments
		  ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return records, nil
}

// Delete removes one enrollment.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM enrollments WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n == 0 {
		return errors.NotFound(errors.PhaseStore, "enrollment", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Subject, &rec.Template, &rec.Quality, &createdAt); err != nil {
		return Record{}, err
	}
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}
