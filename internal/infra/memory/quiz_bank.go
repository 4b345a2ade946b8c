package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-arena-service/internal/domain"
)

// QuizLoader fetches question-bank content from a backing store (e.g., a
// Postgres JSONB table).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizBank caches question banks with TTL to avoid repeated backing-store
// hits; concurrent misses for the same quiz collapse into one load.
type QuizBank struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizBank(loader QuizLoader, ttl time.Duration) *QuizBank {
	return &QuizBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (b *QuizBank) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[quizID]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.quiz, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[quizID]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.quiz, nil
		}
		b.mu.RUnlock()

		quiz, err := b.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		b.mu.Lock()
		b.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (b *QuizBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
