package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists patient aggregates as JSONB documents with an integer
// version column. Update takes a row lock (SELECT ... FOR UPDATE) so two
// writes for the same patient cannot interleave; rows for different patients
// lock independently.
type PGStore struct{ pool *pgxpool.Pool }

// NewPGStore creates a Store backed by Postgres.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastUpdatedAt.IsZero() {
		p.LastUpdatedAt = now
	}
	if p.Status == "" {
		p.Status = PatientActive
	}
	p.Version = 1

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patient: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patient (id, doc, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, doc, p.Version, p.CreatedAt, p.LastUpdatedAt)
	return err
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var doc []byte
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM patient WHERE id = $1`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodePatient(doc, version)
}

func (s *PGStore) Update(ctx context.Context, id uuid.UUID, fn Mutator) (*Patient, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	var version int
	err = tx.QueryRow(ctx,
		`SELECT doc, version FROM patient WHERE id = $1 FOR UPDATE`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p, err := decodePatient(doc, version)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.Version = version + 1

	next, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patient: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE patient SET doc = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $5`,
		id, next, p.Version, p.LastUpdatedAt, version)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrVersionConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT doc, version FROM patient
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, 0, err
		}
		p, err := decodePatient(doc, version)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func decodePatient(doc []byte, version int) (*Patient, error) {
	var p Patient
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode patient: %w", err)
	}
	p.Version = version
	return &p, nil
}
