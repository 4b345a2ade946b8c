package app

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"live-arena-service/internal/domain"
)

// defaultQuestionSec is the fallback per-question time when neither the
// question nor the quiz sets one.
const defaultQuestionSec = 30

// QuizService runs live quiz sessions over an external question bank:
// host controls, answer ingestion with time-weighted scoring, and state
// snapshots for polling or streaming clients.
type QuizService struct {
	store DocumentStore
	bank  QuizBank
	links LinkBuilder
	lb    *Broadcaster[[]domain.LeaderboardEntry]
	now   func() time.Time
	newID func() string
}

func NewQuizService(store DocumentStore, bank QuizBank, links LinkBuilder) *QuizService {
	return NewQuizServiceWithClock(store, bank, links, time.Now)
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(store DocumentStore, bank QuizBank, links LinkBuilder, now func() time.Time) *QuizService {
	return &QuizService{
		store: store,
		bank:  bank,
		links: links,
		lb:    NewBroadcaster[[]domain.LeaderboardEntry](),
		now:   now,
		newID: uuid.NewString,
	}
}

// SubmitResult reports one graded submission back to the player.
type SubmitResult struct {
	Points           float64 `json:"points"`
	CorrectnessRatio float64 `json:"correctness_ratio"`
	TimeRatio        float64 `json:"time_ratio"`
	Correct          bool    `json:"correct"`
	TotalScore       float64 `json:"total_score"`
}

// SessionState is the polling snapshot players and hosts render from.
// The question omits its answer key until reveal.
type SessionState struct {
	ID           string                    `json:"id"`
	Status       domain.QuizStatus         `json:"status"`
	Phase        domain.QuizPhase          `json:"phase"`
	CurrentIndex int                       `json:"current_index"`
	Reveal       bool                      `json:"reveal"`
	Players      map[string]domain.Player  `json:"players"`
	Leaderboard  []domain.LeaderboardEntry `json:"leaderboard"`
	Question     *domain.Question          `json:"question,omitempty"`
	TimeLeftMS   *int64                    `json:"time_left_ms,omitempty"`
	TimeTotalSec int                       `json:"time_total_sec"`
}

// CreateSession opens a waiting session bound to a question bank.
func (s *QuizService) CreateSession(ctx context.Context, quizID, meetingID string) (*domain.QuizSession, error) {
	if _, err := s.bank.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return updateDocument(ctx, s.store, func(doc *domain.Document) (*domain.QuizSession, error) {
		sess := &domain.QuizSession{
			ID:           s.newID(),
			QuizID:       quizID,
			MeetingID:    meetingID,
			Status:       domain.QuizWaiting,
			Phase:        domain.PhaseWaiting,
			CurrentIndex: -1,
			Players:      map[string]*domain.Player{},
			Answers:      map[int]map[string]domain.Answer{},
			CreatedAt:    s.now().UnixMilli(),
		}
		doc.QuizSessions = append(doc.QuizSessions, sess)
		return sess, nil
	})
}

// Sessions lists every live quiz session.
func (s *QuizService) Sessions(ctx context.Context) ([]*domain.QuizSession, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) ([]*domain.QuizSession, error) {
		return doc.QuizSessions, nil
	})
}

// Join registers a player and returns the generated player id.
func (s *QuizService) Join(ctx context.Context, sessionID, nickname string) (string, error) {
	if nickname == "" {
		return "", domain.Validation("nickname required")
	}
	pid, err := updateDocument(ctx, s.store, func(doc *domain.Document) (string, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return "", domain.ErrSessionNotFound
		}
		pid := s.newID()
		if sess.Players == nil {
			sess.Players = map[string]*domain.Player{}
		}
		sess.Players[pid] = &domain.Player{Nickname: nickname}
		return pid, nil
	})
	if err != nil {
		return "", err
	}
	s.publishLeaderboard(ctx, sessionID)
	return pid, nil
}

// Control drives the session state machine from a single entry point.
// Unknown actions and starting an empty quiz fail without mutating state.
func (s *QuizService) Control(ctx context.Context, sessionID, action string) (*domain.QuizSession, error) {
	sess, err := updateDocument(ctx, s.store, func(doc *domain.Document) (*domain.QuizSession, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return nil, domain.ErrSessionNotFound
		}
		quiz, err := s.bank.GetQuiz(ctx, sess.QuizID)
		if err != nil {
			return nil, err
		}
		total := len(quiz.Questions)
		nowMS := s.now().UnixMilli()

		switch action {
		case "start":
			if total == 0 {
				return nil, domain.ErrEmptyQuiz
			}
			sess.Status = domain.QuizRunning
			sess.Phase = domain.PhaseQuestion
			sess.CurrentIndex = 0
			sess.Reveal = false
			sess.QStartedAt = nowMS
			if sess.Answers == nil {
				sess.Answers = map[int]map[string]domain.Answer{}
			}
			// A restart keeps existing answer records; scores already paid
			// out must not be earnable again.
			if sess.Answers[0] == nil {
				sess.Answers[0] = map[string]domain.Answer{}
			}
		case "next":
			if sess.Phase == domain.PhaseQuestion {
				// First press shows the leaderboard; the question does not
				// advance yet.
				sess.Phase = domain.PhaseLeaderboard
				sess.Reveal = true
				sess.Status = domain.QuizReveal
			} else {
				next := sess.CurrentIndex + 1
				if next < total {
					sess.CurrentIndex = next
					sess.Reveal = false
					sess.Status = domain.QuizRunning
					sess.Phase = domain.PhaseQuestion
					sess.QStartedAt = nowMS
					if sess.Answers == nil {
						sess.Answers = map[int]map[string]domain.Answer{}
					}
					if sess.Answers[next] == nil {
						sess.Answers[next] = map[string]domain.Answer{}
					}
				} else {
					sess.Status = domain.QuizFinished
					sess.Phase = domain.PhaseLeaderboard
				}
			}
		case "reveal":
			sess.Reveal = true
			sess.Status = domain.QuizReveal
			sess.Phase = domain.PhaseLeaderboard
		case "end":
			sess.Status = domain.QuizFinished
		default:
			return nil, domain.ErrUnknownAction
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishLeaderboard(ctx, sessionID)
	return sess, nil
}

// Submit grades and records one answer. The first submission per player and
// question wins; later ones are rejected and change nothing.
func (s *QuizService) Submit(ctx context.Context, sessionID, playerID string, answer domain.SubmittedAnswer, penalizeWrong bool) (SubmitResult, error) {
	res, err := updateDocument(ctx, s.store, func(doc *domain.Document) (SubmitResult, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return SubmitResult{}, domain.ErrSessionNotFound
		}
		if _, ok := sess.Players[playerID]; !ok {
			return SubmitResult{}, domain.ErrPlayerNotInSession
		}
		if sess.CurrentIndex < 0 {
			return SubmitResult{}, domain.ErrNoActiveQuestion
		}
		quiz, err := s.bank.GetQuiz(ctx, sess.QuizID)
		if err != nil {
			return SubmitResult{}, err
		}
		if sess.CurrentIndex >= len(quiz.Questions) {
			return SubmitResult{}, domain.ErrQuestionNotFound
		}
		question := quiz.Questions[sess.CurrentIndex]

		if sess.Answers == nil {
			sess.Answers = map[int]map[string]domain.Answer{}
		}
		answers := sess.Answers[sess.CurrentIndex]
		if answers == nil {
			answers = map[string]domain.Answer{}
			sess.Answers[sess.CurrentIndex] = answers
		}
		if _, dup := answers[playerID]; dup {
			return SubmitResult{}, domain.ErrAlreadyAnswered
		}

		nowMS := s.now().UnixMilli()
		ratio := GradeRatio(question, answer)
		timeRatio := s.timeRatio(quiz, question, sess.QStartedAt, nowMS)

		pointsMax := question.Points
		if pointsMax == 0 {
			pointsMax = 1
		}
		earned := pointsMax * ratio * timeRatio
		delta := earned
		if penalizeWrong {
			// Penalty mode is a per-submission caller choice; only a fully
			// wrong answer is penalized, and the delta may go negative.
			if ratio == 0 {
				penalty := question.Penalty
				if penalty == 0 {
					penalty = 0.5
				}
				delta = earned - penalty
			}
		} else if delta < 0 {
			delta = 0
		}
		delta = round3(delta)

		answers[playerID] = domain.Answer{
			Answer:      answer,
			SubmittedAt: nowMS,
			Correct:     ratio == 1.0,
			Points:      delta,
		}
		player := sess.Players[playerID]
		player.Score = round3(player.Score + delta)

		return SubmitResult{
			Points:           delta,
			CorrectnessRatio: round3(ratio),
			TimeRatio:        round3(timeRatio),
			Correct:          ratio == 1.0,
			TotalScore:       player.Score,
		}, nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.publishLeaderboard(ctx, sessionID)
	return res, nil
}

// State builds the polling snapshot from the latest committed document.
func (s *QuizService) State(ctx context.Context, sessionID string) (SessionState, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) (SessionState, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return SessionState{}, domain.ErrSessionNotFound
		}
		quiz, err := s.bank.GetQuiz(ctx, sess.QuizID)
		if err != nil {
			return SessionState{}, err
		}

		state := SessionState{
			ID:           sess.ID,
			Status:       sess.Status,
			Phase:        sess.Phase,
			CurrentIndex: sess.CurrentIndex,
			Reveal:       sess.Reveal,
			Players:      make(map[string]domain.Player, len(sess.Players)),
			Leaderboard:  Leaderboard(sess),
			TimeTotalSec: s.questionSec(quiz, currentQuestion(quiz, sess.CurrentIndex)),
		}
		for pid, p := range sess.Players {
			state.Players[pid] = *p
		}
		if q := currentQuestion(quiz, sess.CurrentIndex); q != nil {
			shown := *q
			if !sess.Reveal {
				shown = shown.WithoutKey()
			}
			state.Question = &shown
		}
		if sess.QStartedAt > 0 && state.TimeTotalSec > 0 && sess.CurrentIndex >= 0 {
			left := sess.QStartedAt + int64(state.TimeTotalSec)*1000 - s.now().UnixMilli()
			if left < 0 {
				left = 0
			}
			state.TimeLeftMS = &left
		}
		return state, nil
	})
}

// RegenerateJoinCode re-stamps the player join link with a fresh token.
func (s *QuizService) RegenerateJoinCode(ctx context.Context, sessionID string) (*domain.CodeRef, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) (*domain.CodeRef, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return nil, domain.ErrSessionNotFound
		}
		ref := s.links.MakeCode(s.links.MakeLink(LinkQuizJoin, sess.ID, 0))
		sess.JoinQR = &ref
		return sess.JoinQR, nil
	})
}

// Subscribe streams leaderboard snapshots for one session. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, sessionID string) (<-chan []domain.LeaderboardEntry, func(), error) {
	initial, err := readDocument(ctx, s.store, func(doc *domain.Document) ([]domain.LeaderboardEntry, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return nil, domain.ErrSessionNotFound
		}
		return Leaderboard(sess), nil
	})
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.lb.Subscribe(sessionID)
	s.lb.Publish(sessionID, initial)
	return ch, cancel, nil
}

// timeRatio is remaining/total clamped to [0,1]; with no start timestamp
// the full ratio applies.
func (s *QuizService) timeRatio(quiz domain.Quiz, question domain.Question, startedAtMS, nowMS int64) float64 {
	totalSec := s.questionSec(quiz, &question)
	if startedAtMS <= 0 || totalSec <= 0 {
		return 1.0
	}
	elapsed := nowMS - startedAtMS
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int64(totalSec)*1000 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return float64(remaining) / float64(int64(totalSec)*1000)
}

func (s *QuizService) questionSec(quiz domain.Quiz, question *domain.Question) int {
	if question != nil && question.TimeSec > 0 {
		return question.TimeSec
	}
	if quiz.TimePerQuestion > 0 {
		return quiz.TimePerQuestion
	}
	return defaultQuestionSec
}

func (s *QuizService) publishLeaderboard(ctx context.Context, sessionID string) {
	lb, err := readDocument(ctx, s.store, func(doc *domain.Document) ([]domain.LeaderboardEntry, error) {
		sess, ok := doc.QuizSessionByID(sessionID)
		if !ok {
			return nil, domain.ErrSessionNotFound
		}
		return Leaderboard(sess), nil
	})
	if err != nil {
		return
	}
	s.lb.Publish(sessionID, lb)
}

func currentQuestion(quiz domain.Quiz, index int) *domain.Question {
	if index < 0 || index >= len(quiz.Questions) {
		return nil
	}
	return &quiz.Questions[index]
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
