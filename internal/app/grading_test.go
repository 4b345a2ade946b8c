package app_test

import (
	"testing"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
)

func TestGradeSingle(t *testing.T) {
	q := domain.Question{Type: domain.QuestionSingle, Correct: "4"}

	if r := app.GradeRatio(q, domain.SubmittedAnswer{Value: "4"}); r != 1.0 {
		t.Fatalf("expected 1.0 for correct answer, got %v", r)
	}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Value: "3"}); r != 0.0 {
		t.Fatalf("expected 0.0 for wrong answer, got %v", r)
	}
}

func TestGradeSingleDefaultsType(t *testing.T) {
	q := domain.Question{Correct: "yes"}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Value: "yes"}); r != 1.0 {
		t.Fatalf("untyped question should grade as single, got %v", r)
	}
}

func TestGradeMultipleIsAllOrNothing(t *testing.T) {
	q := domain.Question{Type: domain.QuestionMultiple, CorrectSet: []string{"2", "5"}}

	if r := app.GradeRatio(q, domain.SubmittedAnswer{Values: []string{"5", "2"}}); r != 1.0 {
		t.Fatalf("order must not matter, got %v", r)
	}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Values: []string{"2"}}); r != 0.0 {
		t.Fatalf("subset earns nothing, got %v", r)
	}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Values: []string{"2", "5", "9"}}); r != 0.0 {
		t.Fatalf("superset earns nothing, got %v", r)
	}
}

func TestGradeOrderStopsAtFirstMismatch(t *testing.T) {
	q := domain.Question{Type: domain.QuestionOrder, Order: []string{"A", "B", "C"}}

	cases := []struct {
		submitted []string
		want      float64
	}{
		{[]string{"A", "B", "C"}, 1.0},
		{[]string{"A", "X", "C"}, 1.0 / 3.0},
		{[]string{"B", "A", "C"}, 0.0},
		{[]string{"A", "B"}, 2.0 / 3.0},
		{nil, 0.0},
	}
	for _, tc := range cases {
		if r := app.GradeRatio(q, domain.SubmittedAnswer{Values: tc.submitted}); r != tc.want {
			t.Fatalf("order %v: expected %v, got %v", tc.submitted, tc.want, r)
		}
	}
}

func TestGradeMatchUsesUnionOfKeys(t *testing.T) {
	q := domain.Question{Type: domain.QuestionMatch, Pairs: map[string]string{"a": "1", "b": "2"}}

	if r := app.GradeRatio(q, domain.SubmittedAnswer{Pairs: map[string]string{"a": "1", "b": "2"}}); r != 1.0 {
		t.Fatalf("full match should be 1.0, got %v", r)
	}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Pairs: map[string]string{"a": "1", "b": "9"}}); r != 0.5 {
		t.Fatalf("one of two pairs should be 0.5, got %v", r)
	}
	// An extra invented key widens the denominator.
	if r := app.GradeRatio(q, domain.SubmittedAnswer{Pairs: map[string]string{"a": "1", "b": "2", "c": "3"}}); r != 2.0/3.0 {
		t.Fatalf("extra key should dilute the score, got %v", r)
	}
	if r := app.GradeRatio(q, domain.SubmittedAnswer{}); r != 0.0 {
		t.Fatalf("empty submission earns nothing, got %v", r)
	}
}
