package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
)

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func TestQuizBankFillsRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionSingle, Correct: "4", Points: 1},
			},
		},
	})}
	bank := NewQuizBank(client, loader, time.Minute)

	quiz, err := bank.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Correct != "4" {
		t.Fatalf("answer key must survive caching, got %+v", quiz.Questions)
	}
	if !mr.Exists("arena:quiz:quiz-1:bank") {
		t.Fatalf("expected cache key to be set")
	}

	if _, err := bank.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected redis cache hit, loader calls %d", loader.calls)
	}
}
