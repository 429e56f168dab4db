package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteRecordColumns = `id, owner_id, template_name, source_filename, data, created_at, updated_at`

type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) an SQLite database with WAL and
// foreign keys enabled, then applies pending migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, dbError("create database directory", err)
		}
	}
	logger.Info("connecting to database", "driver", "sqlite", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, dbError("open sqlite", err)
	}
	if memory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=10000"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, dbError(p, err)
		}
	}

	s := &sqliteStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("successfully connected to database", "driver", "sqlite")
	return s, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) Close() {
	s.logger.Info("closing database connections")
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close sqlite database", "error", err)
	}
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	migs, err := loadMigrations("sqlite")
	if err != nil {
		return dbError("load migrations", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return dbError("create schema_migrations", err)
	}
	for _, m := range migs {
		if err := s.applyMigration(ctx, m); err != nil {
			return dbError("migration "+m.name, err)
		}
	}
	return nil
}

func (s *sqliteStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, formatTime(time.Now()))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("db.migration.applied", "version", m.version, "name", m.name)
	return nil
}

func (s *sqliteStore) Create(ctx context.Context, rec *entity.FormRecord) (*entity.FormRecord, error) {
	out := *rec
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = out.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO form_records (`+sqliteRecordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.ID.String(), out.OwnerID, out.TemplateName, out.SourceFilename, string(out.Data),
		formatTime(out.CreatedAt), formatTime(out.UpdatedAt))
	if err != nil {
		s.logger.Error("form_record create failed", "owner_id", out.OwnerID, "error", err)
		return nil, dbError("create form record", err)
	}
	return s.GetByID(ctx, out.ID)
}

func (s *sqliteStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.FormRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRecordColumns+` FROM form_records WHERE id = ?`, id.String())
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recordNotFound(id)
	}
	if err != nil {
		return nil, dbError("get form record", err)
	}
	return rec, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID string) ([]*entity.FormRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM form_records WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, dbError("list form records", err)
	}
	defer rows.Close()

	var out []*entity.FormRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, dbError("scan form record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list form records", err)
	}
	return out, nil
}

func (s *sqliteStore) UpdateData(ctx context.Context, id uuid.UUID, data json.RawMessage) (*entity.FormRecord, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE form_records SET data = ?, updated_at = ? WHERE id = ?`,
		string(data), formatTime(time.Now()), id.String())
	if err != nil {
		return nil, dbError("update form record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, recordNotFound(id)
	}
	return s.GetByID(ctx, id)
}

func (s *sqliteStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM form_records WHERE id = ?`, id.String())
	if err != nil {
		return dbError("delete form record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recordNotFound(id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*entity.FormRecord, error) {
	var (
		rec                  entity.FormRecord
		id, data             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &rec.OwnerID, &rec.TemplateName, &rec.SourceFilename, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("record id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("record created_at %q: %w", createdAt, err)
	}
	if rec.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("record updated_at %q: %w", updatedAt, err)
	}
	rec.Data = json.RawMessage(data)
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
