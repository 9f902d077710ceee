package firms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore implements Store over a relational firms table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed firm store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const firmColumns = `id, slug, name, status, created_at, updated_at`

// FindByID loads a firm by identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Firm, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+firmColumns+` FROM firms WHERE id = $1`, id)
	return scanFirm(row)
}

// FindBySlug loads a firm by its URL slug.
func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*Firm, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	row := s.db.QueryRowContext(ctx,
		`SELECT `+firmColumns+` FROM firms WHERE slug = $1`, slug)
	return scanFirm(row)
}

func scanFirm(row *sql.Row) (*Firm, error) {
	var f Firm
	err := row.Scan(&f.ID, &f.Slug, &f.Name, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan firm: %w", err)
	}
	return &f, nil
}
