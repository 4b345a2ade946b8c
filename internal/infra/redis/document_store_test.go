package redis

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-arena-service/internal/domain"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewDocumentStore(client, "")
}

func TestDocumentStoreEmptyKeyYieldsEmptyDocument(t *testing.T) {
	store := newTestStore(t)
	doc, version, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 0 || len(doc.Members) != 0 {
		t.Fatalf("expected empty v0 document, got v%d", version)
	}
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, version, _ := store.Load(ctx)
	doc.Members = append(doc.Members, domain.Member{Email: "a@x.com", Studio: "CC"})
	doc.Debates = append(doc.Debates, &domain.Debate{
		ID:     "d1",
		Status: domain.DebatePlanned,
		Scores: domain.Scores{
			Public: map[int]*domain.PublicTally{
				0: {Votes: map[string]int{"t1": 2}, Voters: map[string]string{"a@x.com": "t1"}},
			},
		},
	})
	if err := store.Save(ctx, doc, version); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, version, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected v1, got %d", version)
	}
	tally := got.Debates[0].Scores.Public[0]
	if tally.Votes["t1"] != 2 || tally.Voters["a@x.com"] != "t1" {
		t.Fatalf("tally did not survive the trip: %+v", tally)
	}
}

func TestDocumentStoreRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, version, _ := store.Load(ctx)
	doc.Members = append(doc.Members, domain.Member{Email: "a@x.com"})
	if err := store.Save(ctx, doc, version); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := domain.NewDocument()
	if err := store.Save(ctx, stale, version); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}
