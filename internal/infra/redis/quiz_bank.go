package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
)

// QuizBank caches whole question banks in Redis (one JSON value per quiz)
// and falls back to a loader on cache miss. Banks carry answer keys for all
// four question types, so the entire quiz is cached rather than a per-option
// hash.
type QuizBank struct {
	client *redis.Client
	loader memory.QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizBank(client *redis.Client, loader memory.QuizLoader, ttl time.Duration) *QuizBank {
	return &QuizBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuizBank) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := b.key(quizID)

	if quiz, ok := b.fromCache(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := b.fromCache(ctx, key); ok {
			return quiz, nil
		}

		quiz, err := b.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("encode quiz: %w", err)
		}
		// best-effort cache fill
		_ = b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (b *QuizBank) fromCache(ctx context.Context, key string) (domain.Quiz, bool) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		// cache miss or transient Redis trouble; the loader is the truth
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (b *QuizBank) key(quizID string) string {
	return "arena:quiz:" + quizID + ":bank"
}

func (b *QuizBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
