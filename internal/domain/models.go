package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeEmail lower-cases and trims an email; emails are case-insensitive
// keys everywhere in the document.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Member is a directory entry. Studio is free-form but "CC" and "WSOP" are
// the two tags the planner balances. External members never count for
// scoring eligibility.
type Member struct {
	ID       int    `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Studio   string `json:"studio,omitempty"`
	External bool   `json:"external,omitempty"`
}

// MeetingParticipant is one invite-list entry of a meeting.
type MeetingParticipant struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Present bool   `json:"present,omitempty"`
}

// Meeting carries the invite list public voters are validated against.
type Meeting struct {
	ID           string               `json:"id"`
	Title        string               `json:"title,omitempty"`
	Participants []MeetingParticipant `json:"participants,omitempty"`
}

// InvitedEmails returns the invite list keyed by normalized email.
func (m *Meeting) InvitedEmails() map[string]MeetingParticipant {
	out := make(map[string]MeetingParticipant, len(m.Participants))
	for _, p := range m.Participants {
		if em := NormalizeEmail(p.Email); em != "" {
			out[em] = p
		}
	}
	return out
}

// DebateStatus is the monotonic debate lifecycle.
type DebateStatus string

const (
	DebatePlanned  DebateStatus = "planned"
	DebateLive     DebateStatus = "live"
	DebateFinished DebateStatus = "finished"
)

// SignupChoice is a participant's self-selected role preference.
type SignupChoice string

const (
	ChoiceJudge    SignupChoice = "judge"
	ChoiceAdvocate SignupChoice = "advocate"
	ChoiceAny      SignupChoice = "any"
	ChoiceNone     SignupChoice = "none"
)

// Signup is one registration entry in a debate.
type Signup struct {
	Choice SignupChoice `json:"choice"`
}

// StepAction gates what kind of voting a flow step accepts.
type StepAction string

const (
	ActionNone             StepAction = "none"
	ActionJuryVote         StepAction = "jury_vote"
	ActionSimpleJuryVote   StepAction = "simple_jury_vote"
	ActionPublicVote       StepAction = "public_vote"
	ActionJuryPublic       StepAction = "jury+public"
	ActionSimpleJuryPublic StepAction = "simple_jury+public"
)

// AcceptsJury reports whether jury ballots may target this step.
func (a StepAction) AcceptsJury() bool {
	switch a {
	case ActionJuryVote, ActionSimpleJuryVote, ActionJuryPublic, ActionSimpleJuryPublic:
		return true
	}
	return false
}

// AcceptsPublic reports whether public votes may target this step.
func (a StepAction) AcceptsPublic() bool {
	switch a {
	case ActionPublicVote, ActionJuryPublic, ActionSimpleJuryPublic:
		return true
	}
	return false
}

// Simple reports whether jury ballots are a single team choice instead of a
// rubric grid.
func (a StepAction) Simple() bool {
	return a == ActionSimpleJuryVote || a == ActionSimpleJuryPublic
}

// Voting reports whether the step carries any voting at all.
func (a StepAction) Voting() bool {
	return a.AcceptsJury() || a.AcceptsPublic()
}

// CodeRef is the stored result of the QR/link collaborator: a target URL,
// a scannable-code URL and an opaque version token that busts caches.
type CodeRef struct {
	URL     string `json:"url"`
	CodeURL string `json:"qr_url"`
	Token   string `json:"token"`
}

// StepQR is a step's regenerated code set. Combined jury+public steps carry
// both; Type mirrors the step action family.
type StepQR struct {
	CodeRef
	Type   string   `json:"type"`
	Jury   *CodeRef `json:"jury,omitempty"`
	Public *CodeRef `json:"public,omitempty"`
}

// Step is one ordered phase of a debate's flow.
type Step struct {
	Title  string     `json:"title"`
	Action StepAction `json:"action"`
	Round  string     `json:"round,omitempty"`
	QR     *StepQR    `json:"qr,omitempty"`
}

// CriterionType scopes a rubric criterion to every step or a single round.
type CriterionType string

const (
	CriterionGeneral CriterionType = "general"
	CriterionRound   CriterionType = "round"
)

// Criterion is a bounded numeric scale judges score a team against.
type Criterion struct {
	Key   string        `json:"key"`
	Label string        `json:"label"`
	Min   float64       `json:"min"`
	Max   float64       `json:"max"`
	Type  CriterionType `json:"type,omitempty"`
	Round string        `json:"round,omitempty"`
}

// Team is one ordered competing side of a debate.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members"`
}

// Format is the capacity contract the planner fills.
type Format struct {
	TeamCount  int `json:"team_count"`
	TeamSize   int `json:"team_size"`
	JudgeCount int `json:"judge_count"`
}

// SimpleCriterionKey is the reserved rubric key a simple team choice is
// stored under, worth an implicit 1.0.
const SimpleCriterionKey = "default"

// JudgeBallot is one judge's scores for one step: teamID -> criterion key
// -> clamped value.
type JudgeBallot map[string]map[string]float64

// PublicTally is one step's public vote state. Votes maps teamID to its
// current count; Voters maps a voter email to the team currently holding
// that voter's single vote and is the source of truth for re-votes.
type PublicTally struct {
	Votes  map[string]int
	Voters map[string]string
}

// votersKey is the reserved key the legacy wire format stores the voter map
// under, alongside the team counts.
const votersKey = "_voters"

// MarshalJSON keeps the legacy wire shape: {"t1": 2, "_voters": {...}}.
func (t PublicTally) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(t.Votes)+1)
	for teamID, n := range t.Votes {
		raw[teamID] = n
	}
	if len(t.Voters) > 0 {
		raw[votersKey] = t.Voters
	}
	return json.Marshal(raw)
}

// UnmarshalJSON splits the legacy combined map back into counts and voters.
func (t *PublicTally) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Votes = make(map[string]int)
	t.Voters = make(map[string]string)
	for k, v := range raw {
		if k == votersKey {
			if err := json.Unmarshal(v, &t.Voters); err != nil {
				return fmt.Errorf("public tally voters: %w", err)
			}
			continue
		}
		var n float64
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("public tally count %q: %w", k, err)
		}
		t.Votes[k] = int(n)
	}
	return nil
}

// Scores is a debate's full vote state, keyed by flow step index.
type Scores struct {
	Jury   map[int]map[string]JudgeBallot `json:"jury,omitempty"`
	Public map[int]*PublicTally           `json:"public,omitempty"`
}

// LiveState is the live sub-flag kept consistent with Status by the FSM.
type LiveState struct {
	Active    bool  `json:"active"`
	StartedAt int64 `json:"started_at,omitempty"`
}

// Debate is a full debate record.
type Debate struct {
	ID             string            `json:"id"`
	MeetingID      string            `json:"meeting_id,omitempty"`
	Affirmation    string            `json:"affirmation,omitempty"`
	Status         DebateStatus      `json:"status"`
	Judges         []string          `json:"judges"`
	Teams          []Team            `json:"teams"`
	Reserves       []string          `json:"reserves"`
	Signups        map[string]Signup `json:"signups,omitempty"`
	Flow           []Step            `json:"flow,omitempty"`
	Rubric         []Criterion       `json:"rubric,omitempty"`
	Format         Format            `json:"format"`
	Scores         Scores            `json:"scores"`
	Live           LiveState         `json:"live"`
	RegistrationQR *CodeRef          `json:"registration_qr,omitempty"`
	CreatedAt      int64             `json:"created_at,omitempty"`
}

// TeamByID returns the team with the given id, if present.
func (d *Debate) TeamByID(id string) (*Team, bool) {
	for i := range d.Teams {
		if d.Teams[i].ID == id {
			return &d.Teams[i], true
		}
	}
	return nil, false
}

// IsJudge reports whether the email sits on this debate's jury.
func (d *Debate) IsJudge(email string) bool {
	em := NormalizeEmail(email)
	for _, j := range d.Judges {
		if NormalizeEmail(j) == em {
			return true
		}
	}
	return false
}

// IsTeamMember reports whether the email belongs to any team.
func (d *Debate) IsTeamMember(email string) bool {
	em := NormalizeEmail(email)
	for _, t := range d.Teams {
		for _, m := range t.Members {
			if NormalizeEmail(m) == em {
				return true
			}
		}
	}
	return false
}

// RubricForRound returns the general criteria plus the ones bound to the
// given round.
func (d *Debate) RubricForRound(round string) []Criterion {
	out := make([]Criterion, 0, len(d.Rubric))
	for _, c := range d.Rubric {
		ct := c.Type
		if ct == "" {
			ct = CriterionGeneral
		}
		if ct == CriterionGeneral || (ct == CriterionRound && c.Round == round) {
			out = append(out, c)
		}
	}
	return out
}

// QuestionType selects the grading rule for a question.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
	QuestionOrder    QuestionType = "order"
	QuestionMatch    QuestionType = "match"
)

// Question is a quiz-bank question; the answer key field used depends on
// Type. Points is the maximum award before time weighting.
type Question struct {
	ID         string            `json:"id,omitempty"`
	Type       QuestionType      `json:"type"`
	Prompt     string            `json:"prompt,omitempty"`
	Options    []string          `json:"options,omitempty"`
	Correct    string            `json:"correct,omitempty"`
	CorrectSet []string          `json:"correct_set,omitempty"`
	Order      []string          `json:"order,omitempty"`
	Pairs      map[string]string `json:"map,omitempty"`
	Points     float64           `json:"points,omitempty"`
	TimeSec    int               `json:"time_sec,omitempty"`
	Penalty    float64           `json:"penalty_points,omitempty"`
}

// WithoutKey returns a copy safe to show players before reveal.
func (q Question) WithoutKey() Question {
	q.Correct = ""
	q.CorrectSet = nil
	q.Order = nil
	q.Pairs = nil
	return q
}

// Quiz is an external question bank, read-only to the engine.
type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title,omitempty"`
	TimePerQuestion int        `json:"time_per_question,omitempty"`
	Questions       []Question `json:"questions"`
}

// QuizStatus is the session lifecycle axis.
type QuizStatus string

const (
	QuizWaiting  QuizStatus = "waiting"
	QuizRunning  QuizStatus = "running"
	QuizReveal   QuizStatus = "reveal"
	QuizFinished QuizStatus = "finished"
)

// QuizPhase is the question/leaderboard alternation, independent of status.
type QuizPhase string

const (
	PhaseWaiting     QuizPhase = "waiting"
	PhaseQuestion    QuizPhase = "question"
	PhaseLeaderboard QuizPhase = "leaderboard"
)

// Player is one quiz participant; Score is the running sum of answer deltas.
type Player struct {
	Nickname string  `json:"nickname"`
	Score    float64 `json:"score"`
}

// SubmittedAnswer is a typed answer payload; the field read depends on the
// question type (Value for single, Values for multiple/order, Pairs for
// match).
type SubmittedAnswer struct {
	Value  string            `json:"value,omitempty"`
	Values []string          `json:"values,omitempty"`
	Pairs  map[string]string `json:"pairs,omitempty"`
}

// Answer is an immutable submission record; Points is the delta applied to
// the player score at submission time.
type Answer struct {
	Answer      SubmittedAnswer `json:"answer"`
	SubmittedAt int64           `json:"ts"`
	Correct     bool            `json:"correct"`
	Points      float64         `json:"points"`
}

// QuizSession is a live quiz over an external question bank.
type QuizSession struct {
	ID           string                    `json:"id"`
	QuizID       string                    `json:"quiz_id"`
	MeetingID    string                    `json:"meeting_id,omitempty"`
	Status       QuizStatus                `json:"status"`
	Phase        QuizPhase                 `json:"phase"`
	CurrentIndex int                       `json:"current_index"`
	QStartedAt   int64                     `json:"q_started_at,omitempty"`
	Reveal       bool                      `json:"reveal"`
	Players      map[string]*Player        `json:"players"`
	Answers      map[int]map[string]Answer `json:"answers"`
	JoinQR       *CodeRef                  `json:"join_qr,omitempty"`
	CreatedAt    int64                     `json:"created_at,omitempty"`
}

// LeaderboardEntry is a snapshot-friendly view of a quiz player.
type LeaderboardEntry struct {
	PlayerID string  `json:"pid"`
	Nickname string  `json:"nickname"`
	Score    float64 `json:"score"`
}

// PointsEntry is one reward-ledger record. Entries are idempotent per
// (member, criteria, debate/meeting).
type PointsEntry struct {
	ID          string  `json:"id"`
	MemberEmail string  `json:"member_email"`
	Points      float64 `json:"points"`
	Reason      string  `json:"reason,omitempty"`
	Criteria    string  `json:"criteria"`
	AddedBy     string  `json:"added_by,omitempty"`
	AddedAt     int64   `json:"added_at,omitempty"`
	DebateID    string  `json:"debate_id,omitempty"`
	MeetingID   string  `json:"meeting_id,omitempty"`
}

// Document is the whole persisted state, loaded and replaced atomically.
type Document struct {
	Members       []Member       `json:"members"`
	Meetings      []Meeting      `json:"meetings"`
	Debates       []*Debate      `json:"debates"`
	QuizSessions  []*QuizSession `json:"quiz_sessions"`
	PointsEntries []PointsEntry  `json:"points_entries"`
}

// NewDocument returns an empty document with non-nil collections.
func NewDocument() *Document {
	return &Document{
		Members:       []Member{},
		Meetings:      []Meeting{},
		Debates:       []*Debate{},
		QuizSessions:  []*QuizSession{},
		PointsEntries: []PointsEntry{},
	}
}

// MemberByEmail looks up a directory entry case-insensitively.
func (doc *Document) MemberByEmail(email string) (*Member, bool) {
	em := NormalizeEmail(email)
	for i := range doc.Members {
		if NormalizeEmail(doc.Members[i].Email) == em {
			return &doc.Members[i], true
		}
	}
	return nil, false
}

// StudioOf returns the upper-cased studio tag of a member, or "" when the
// email is unknown.
func (doc *Document) StudioOf(email string) string {
	m, ok := doc.MemberByEmail(email)
	if !ok {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(m.Studio))
}

// DebateByID finds a debate record.
func (doc *Document) DebateByID(id string) (*Debate, bool) {
	for _, d := range doc.Debates {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// MeetingByID finds a meeting record.
func (doc *Document) MeetingByID(id string) (*Meeting, bool) {
	for i := range doc.Meetings {
		if doc.Meetings[i].ID == id {
			return &doc.Meetings[i], true
		}
	}
	return nil, false
}

// QuizSessionByID finds a live quiz session record.
func (doc *Document) QuizSessionByID(id string) (*QuizSession, bool) {
	for _, s := range doc.QuizSessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Validate checks the cross-record invariants enforced at the document
// boundary: unique team ids per debate and disjoint role membership.
func (doc *Document) Validate() error {
	for _, d := range doc.Debates {
		seen := make(map[string]struct{}, len(d.Teams))
		for _, t := range d.Teams {
			if _, dup := seen[t.ID]; dup {
				return Validation(fmt.Sprintf("debate %s: duplicate team id %q", d.ID, t.ID))
			}
			seen[t.ID] = struct{}{}
		}
		roles := make(map[string]string)
		claim := func(email, role string) error {
			em := NormalizeEmail(email)
			if prev, taken := roles[em]; taken {
				return Validation(fmt.Sprintf("debate %s: %s is both %s and %s", d.ID, em, prev, role))
			}
			roles[em] = role
			return nil
		}
		for _, j := range d.Judges {
			if err := claim(j, "judge"); err != nil {
				return err
			}
		}
		for _, t := range d.Teams {
			for _, m := range t.Members {
				if err := claim(m, "team member"); err != nil {
					return err
				}
			}
		}
		for _, r := range d.Reserves {
			if err := claim(r, "reserve"); err != nil {
				return err
			}
		}
	}
	return nil
}
