package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"live-arena-service/internal/domain"
)

// DocumentStore is an in-memory implementation of app.DocumentStore. The
// committed snapshot is held as JSON so every Load hands out an isolated
// copy; Save is a compare-and-swap on the version counter.
type DocumentStore struct {
	mu      sync.Mutex
	raw     []byte
	version int64
}

func NewDocumentStore() *DocumentStore {
	raw, _ := json.Marshal(domain.NewDocument())
	return &DocumentStore{raw: raw}
}

// NewDocumentStoreWithDocument seeds the store, useful in tests.
func NewDocumentStoreWithDocument(doc *domain.Document) (*DocumentStore, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("seed document: %w", err)
	}
	return &DocumentStore{raw: raw}, nil
}

func (s *DocumentStore) Load(_ context.Context) (*domain.Document, int64, error) {
	s.mu.Lock()
	raw, version := s.raw, s.version
	s.mu.Unlock()

	var doc domain.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("decode document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, 0, err
	}
	return &doc, version, nil
}

func (s *DocumentStore) Save(_ context.Context, doc *domain.Document, version int64) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		return domain.ErrVersionConflict
	}
	s.raw = raw
	s.version++
	return nil
}
