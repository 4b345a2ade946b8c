package link

import (
	"testing"

	"live-arena-service/internal/app"
)

func TestBuilderLinkShapes(t *testing.T) {
	b := NewBuilder("https://arena.example/")

	cases := []struct {
		kind app.LinkKind
		id   string
		step int
		want string
	}{
		{app.LinkJury, "d1", 2, "https://arena.example/debates/d1/jury?step=2"},
		{app.LinkPublic, "d1", 0, "https://arena.example/debates/d1/vote?step=0"},
		{app.LinkQuizJoin, "s1", 0, "https://arena.example/quiz/s1/join"},
		{app.LinkRegistration, "d1", 0, "https://arena.example/debates/d1/register"},
	}
	for _, tc := range cases {
		if got := b.MakeLink(tc.kind, tc.id, tc.step); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestMakeCodeVersionsTheImage(t *testing.T) {
	b := NewBuilderWithID("https://arena.example", func() string { return "tok-1" })

	ref := b.MakeCode("https://arena.example/debates/d1/register")
	if ref.Token != "tok-1" {
		t.Fatalf("token not injected: %+v", ref)
	}
	if ref.CodeURL != "https://arena.example/static/qr/tok-1.png?v=tok-1" {
		t.Fatalf("unexpected code url: %q", ref.CodeURL)
	}
	if ref.URL != "https://arena.example/debates/d1/register" {
		t.Fatalf("target url mangled: %q", ref.URL)
	}
}

func TestMakeCodeRotatesTokens(t *testing.T) {
	b := NewBuilder("https://arena.example")
	first := b.MakeCode("https://arena.example/x")
	second := b.MakeCode("https://arena.example/x")
	if first.Token == second.Token {
		t.Fatalf("regenerated codes must carry fresh tokens")
	}
}
