package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
)

const pgRecordColumns = `id, owner_id, template_name, source_filename, data, created_at, updated_at`

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func (s *postgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *postgresStore) Close() {
	s.logger.Info("closing database connections")
	s.pool.Close()
}

func (s *postgresStore) migrate(ctx context.Context) error {
	migs, err := loadMigrations("postgres")
	if err != nil {
		return dbError("load migrations", err)
	}
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return dbError("create schema_migrations", err)
	}
	for _, m := range migs {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, m.version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			s.logger.Info("db.migration.applied", "version", m.version, "name", m.name)
			return nil
		})
		if err != nil {
			return dbError("migration "+m.name, err)
		}
	}
	return nil
}

func (s *postgresStore) Create(ctx context.Context, rec *entity.FormRecord) (*entity.FormRecord, error) {
	out := *rec
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	now := time.Now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = out.CreatedAt

	row := s.pool.QueryRow(ctx,
		`INSERT INTO form_records (`+pgRecordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+pgRecordColumns,
		out.ID, out.OwnerID, out.TemplateName, out.SourceFilename, []byte(out.Data), out.CreatedAt, out.UpdatedAt)
	created, err := scanPGRecord(row)
	if err != nil {
		s.logger.Error("form_record create failed", "owner_id", out.OwnerID, "error", err)
		return nil, dbError("create form record", err)
	}
	return created, nil
}

func (s *postgresStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.FormRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRecordColumns+` FROM form_records WHERE id = $1`, id)
	rec, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recordNotFound(id)
	}
	if err != nil {
		return nil, dbError("get form record", err)
	}
	return rec, nil
}

func (s *postgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*entity.FormRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRecordColumns+` FROM form_records WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, dbError("list form records", err)
	}
	defer rows.Close()

	var out []*entity.FormRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
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

func (s *postgresStore) UpdateData(ctx context.Context, id uuid.UUID, data json.RawMessage) (*entity.FormRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE form_records SET data = $2, updated_at = $3 WHERE id = $1 RETURNING `+pgRecordColumns,
		id, []byte(data), time.Now().UTC())
	rec, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recordNotFound(id)
	}
	if err != nil {
		return nil, dbError("update form record", err)
	}
	return rec, nil
}

func (s *postgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM form_records WHERE id = $1`, id)
	if err != nil {
		return dbError("delete form record", err)
	}
	if tag.RowsAffected() == 0 {
		return recordNotFound(id)
	}
	return nil
}

func scanPGRecord(row pgx.Row) (*entity.FormRecord, error) {
	var (
		rec  entity.FormRecord
		data []byte
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.TemplateName, &rec.SourceFilename, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Data = json.RawMessage(data)
	return &rec, nil
}
