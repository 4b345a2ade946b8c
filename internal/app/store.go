package app

import (
	"context"
	"errors"

	"live-arena-service/internal/domain"
)

// DocumentStore abstracts the whole-document persistence contract: atomic
// load and versioned replace (memory, Redis, Postgres). Save must reject a
// stale version with domain.ErrVersionConflict.
type DocumentStore interface {
	Load(ctx context.Context) (*domain.Document, int64, error)
	Save(ctx context.Context, doc *domain.Document, version int64) error
}

// QuizBank loads question-bank content (from cache/backing store). The
// engine never writes through this interface.
type QuizBank interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// LinkKind selects the link shape the QR collaborator builds.
type LinkKind string

const (
	LinkJury         LinkKind = "jury"
	LinkPublic       LinkKind = "public"
	LinkQuizJoin     LinkKind = "quiz-join"
	LinkRegistration LinkKind = "registration"
)

// LinkBuilder is the QR/link collaborator: pure link construction plus an
// opaque versioned code reference. Rendering is someone else's job.
type LinkBuilder interface {
	MakeLink(kind LinkKind, id string, step int) string
	MakeCode(url string) domain.CodeRef
}

// saveRetries bounds the optimistic-concurrency retry loop; two writers
// racing on one document resolve within a retry or two.
const saveRetries = 3

// updateDocument runs a read-modify-write cycle against the store, retrying
// on version conflicts. mutate sees a fresh snapshot each attempt, so an
// error from it leaves committed state untouched.
func updateDocument[T any](ctx context.Context, store DocumentStore, mutate func(doc *domain.Document) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		doc, version, err := store.Load(ctx)
		if err != nil {
			return zero, err
		}
		out, err := mutate(doc)
		if err != nil {
			return zero, err
		}
		if err := store.Save(ctx, doc, version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) && attempt < saveRetries {
				continue
			}
			return zero, err
		}
		return out, nil
	}
}

// readDocument serves lock-free reads from the latest committed snapshot.
func readDocument[T any](ctx context.Context, store DocumentStore, view func(doc *domain.Document) (T, error)) (T, error) {
	var zero T
	doc, _, err := store.Load(ctx)
	if err != nil {
		return zero, err
	}
	return view(doc)
}
