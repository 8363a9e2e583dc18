package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of a single JSONB document table.
// The email column is kept alongside the document for the uniqueness index
// and for FindByEmail lookups.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres-backed profile store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the profiles table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate profiles table: %w", err)
	}
	return nil
}

// Get implements Store.Get
func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT doc FROM profiles WHERE id = $1`, id)
	return scanDocument(row)
}

// Put implements Store.Put
func (s *PostgresStore) Put(ctx context.Context, id string, doc Document) error {
	now := time.Now().UTC()
	doc.ID = id
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, email, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		id, doc.Email, data, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", id, err)
	}
	return nil
}

// Patch implements Store.Patch. The read-modify-write runs in a transaction
// with the row locked so concurrent patches do not lose fields.
func (s *PostgresStore) Patch(ctx context.Context, id string, patch Patch) (Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("begin patch: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT doc FROM profiles WHERE id = $1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}

	updated := patch.apply(doc, time.Now().UTC())
	data, err := json.Marshal(updated)
	if err != nil {
		return Document{}, fmt.Errorf("marshal document: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE profiles SET email = $2, doc = $3, updated_at = $4 WHERE id = $1`,
		id, updated.Email, data, updated.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("patch profile %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("commit patch: %w", err)
	}
	return updated, nil
}

// Delete implements Store.Delete
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByEmail implements Store.FindByEmail
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT doc FROM profiles WHERE email = $1`, email)
	return scanDocument(row)
}

// List implements Store.List
func (s *PostgresStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (Document, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("scan profile: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return doc, nil
}
