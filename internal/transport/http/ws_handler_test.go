package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/link"
	"live-arena-service/internal/infra/memory"
)

func newWSServer(t *testing.T) (*httptest.Server, *app.DebateService, *app.QuizService) {
	t.Helper()
	store := memory.NewDocumentStore()
	bank := memory.NewQuizBank(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	links := link.NewBuilder("http://arena.test")
	debates := app.NewDebateService(store, links, app.NewLedgerRewards(func() string { return "entry" }))
	quizzes := app.NewQuizService(store, bank, links)

	mux := http.NewServeMux()
	ws := NewWSHandler(debates, quizzes)
	mux.HandleFunc("/ws/quiz", ws.ServeQuiz)
	mux.HandleFunc("/ws/debate", ws.ServeDebate)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, debates, quizzes
}

func TestWebSocketQuizAnswerFlow(t *testing.T) {
	server, _, quizzes := newWSServer(t)
	ctx := context.Background()

	sess, err := quizzes.CreateSession(ctx, "quiz-1", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	pid, err := quizzes.Join(ctx, sess.ID, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := quizzes.Control(ctx, sess.ID, "start"); err != nil {
		t.Fatalf("start: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws/quiz?sessionId=" + sess.ID + "&playerId=" + pid
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The state snapshot and the initial leaderboard frame both arrive up
	// front, in either order.
	stateSeen := false
	for i := 0; i < 2 && !stateSeen; i++ {
		msgType, payload := readNext(conn, t, "")
		if msgType == "state" && payload != nil {
			stateSeen = true
		}
	}
	if !stateSeen {
		t.Fatalf("expected a state snapshot frame")
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"value": "4",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	answerSeen := false
	leaderboardSeen := false
	for i := 0; i < 3; i++ {
		typ, _ := readNext(conn, t, "")
		switch typ {
		case "answerResult":
			answerSeen = true
		case "leaderboard":
			leaderboardSeen = true
		}
		if answerSeen && leaderboardSeen {
			break
		}
	}
	if !answerSeen || !leaderboardSeen {
		t.Fatalf("expected answerResult and leaderboard, got answerResult=%v leaderboard=%v", answerSeen, leaderboardSeen)
	}
}

func TestWebSocketDebateScoreStream(t *testing.T) {
	server, debates, _ := newWSServer(t)
	ctx := context.Background()

	d, err := debates.Create(ctx, app.CreateDebateParams{
		Affirmation: "Tabs beat spaces",
		Flow:        []domain.Step{{Title: "Main", Action: domain.ActionJuryVote}},
	})
	if err != nil {
		t.Fatalf("create debate: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws/debate?debateId=" + d.ID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msgType, payload := readNext(conn, t, "scores")
	if msgType != "scores" || payload == nil {
		t.Fatalf("expected initial scores frame, got %s", msgType)
	}
	if payload["debate_id"] != d.ID {
		t.Fatalf("frame for wrong debate: %+v", payload)
	}

	// A state change pushes a fresh frame.
	if _, err := debates.StartLive(ctx, d.ID); err != nil {
		t.Fatalf("start live: %v", err)
	}
	_, payload = readNext(conn, t, "scores")
	if active, _ := payload["active"].(bool); !active {
		t.Fatalf("expected live frame, got %+v", payload)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	// Payloads are not always JSON objects (leaderboard frames carry an
	// array); callers that index into the payload only do so for frames
	// that are objects.
	var payload map[string]any
	_ = json.Unmarshal(msg.Payload, &payload)
	if payload == nil && len(msg.Payload) > 0 {
		payload = map[string]any{}
	}
	return msg.Type, payload
}
