package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"live-arena-service/internal/domain"
)

// envelope is the stored shape: the document plus its version counter.
type envelope struct {
	Version int64            `json:"version"`
	Data    *domain.Document `json:"data"`
}

// DocumentStore keeps the whole document under a single Redis key.
// Saves run inside WATCH so a concurrent writer bumps the key and loses us
// the transaction, which surfaces as a version conflict the caller retries.
type DocumentStore struct {
	client *redis.Client
	key    string
}

func NewDocumentStore(client *redis.Client, key string) *DocumentStore {
	if key == "" {
		key = "arena:document"
	}
	return &DocumentStore{client: client, key: key}
}

func (s *DocumentStore) Load(ctx context.Context) (*domain.Document, int64, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewDocument(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("decode document: %w", err)
	}
	if env.Data == nil {
		env.Data = domain.NewDocument()
	}
	if err := env.Data.Validate(); err != nil {
		return nil, 0, err
	}
	return env.Data, env.Version, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document, version int64) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{Version: version + 1, Data: doc})
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if version != 0 {
				return domain.ErrVersionConflict
			}
		case err != nil:
			return fmt.Errorf("save document: %w", err)
		default:
			var env envelope
			if err := json.Unmarshal(current, &env); err != nil {
				return fmt.Errorf("decode stored document: %w", err)
			}
			if env.Version != version {
				return domain.ErrVersionConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, raw, 0)
			return nil
		})
		return err
	}, s.key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return err
}
