package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-arena-service/internal/domain"
)

const defaultDocumentName = "main"

// DocumentStore keeps the arena document as a single JSONB row guarded by a
// version column. Save compares-and-swaps on that column, so concurrent
// writers resolve through the caller's retry loop instead of row locks.
type DocumentStore struct {
	pool *pgxpool.Pool
	name string
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool, name: defaultDocumentName}
}

// NewDocumentStoreWithName targets a non-default document row, used by tests
// to isolate fixtures sharing one database.
func NewDocumentStoreWithName(pool *pgxpool.Pool, name string) *DocumentStore {
	return &DocumentStore{pool: pool, name: name}
}

func (s *DocumentStore) Load(ctx context.Context) (*domain.Document, int64, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT data, version FROM documents WHERE name=$1`, s.name,
	).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewDocument(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document: %w", err)
	}
	doc := domain.NewDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, 0, fmt.Errorf("unmarshal document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document, version int64) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if version == 0 {
		// First write claims the row; a concurrent first writer trips the
		// unique constraint and surfaces as a version conflict.
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO documents (name, data, version) VALUES ($1, $2, 1)
			 ON CONFLICT (name) DO NOTHING`, s.name, raw)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data=$1, version=version+1 WHERE name=$2 AND version=$3`,
		raw, s.name, version)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
