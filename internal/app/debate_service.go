package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"live-arena-service/internal/domain"
)

// DebateService owns the debate lifecycle: signups, seat planning, vote
// ingestion, the live flag and terminal reward attribution. All mutations
// go through the versioned document store, so concurrent votes retry on
// conflict instead of losing updates.
type DebateService struct {
	store   DocumentStore
	links   LinkBuilder
	rewards RewardSink
	scores  *Broadcaster[ScoreSnapshot]
	now     func() time.Time
	newID   func() string
	newRand func() *rand.Rand
}

func NewDebateService(store DocumentStore, links LinkBuilder, rewards RewardSink) *DebateService {
	return NewDebateServiceWithClock(store, links, rewards, time.Now, func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	})
}

// NewDebateServiceWithClock is test-only: deterministic timestamps and a
// seeded random source for the planner.
func NewDebateServiceWithClock(store DocumentStore, links LinkBuilder, rewards RewardSink, now func() time.Time, newRand func() *rand.Rand) *DebateService {
	return &DebateService{
		store:   store,
		links:   links,
		rewards: rewards,
		scores:  NewBroadcaster[ScoreSnapshot](),
		now:     now,
		newID:   uuid.NewString,
		newRand: newRand,
	}
}

// CreateDebateParams is the shape of a new debate.
type CreateDebateParams struct {
	MeetingID   string             `json:"meeting_id"`
	Affirmation string             `json:"affirmation"`
	Format      domain.Format      `json:"format"`
	Flow        []domain.Step      `json:"flow"`
	Rubric      []domain.Criterion `json:"rubric"`
}

// JuryBallotInput is one judge's submission for one step: either a rubric
// grid (Values) or a single team choice for simple steps.
type JuryBallotInput struct {
	Email      string                        `json:"email"`
	Step       int                           `json:"step"`
	Values     map[string]map[string]float64 `json:"values,omitempty"`
	TeamChoice string                        `json:"team_choice,omitempty"`
}

// PublicVoteInput is one audience vote for one step.
type PublicVoteInput struct {
	Email  string `json:"email"`
	Step   int    `json:"step"`
	TeamID string `json:"team_id"`
}

// TeamRef is a display reference to a team.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ScoreSnapshot is the polling/streaming view of a debate's score state.
// Totals and raw scores are only exposed while the debate is live.
type ScoreSnapshot struct {
	DebateID string             `json:"debate_id"`
	Active   bool               `json:"active"`
	Teams    []TeamRef          `json:"teams"`
	Totals   map[string]float64 `json:"totals,omitempty"`
	Scores   *domain.Scores     `json:"scores,omitempty"`
}

// Create registers a new planned debate and stamps voting-step codes.
func (s *DebateService) Create(ctx context.Context, p CreateDebateParams) (*domain.Debate, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) (*domain.Debate, error) {
		if p.MeetingID != "" {
			if _, ok := doc.MeetingByID(p.MeetingID); !ok {
				return nil, domain.ErrMeetingNotFound
			}
		}
		format := p.Format
		if format.TeamCount <= 0 {
			format.TeamCount = 2
		}
		if format.TeamSize <= 0 {
			format.TeamSize = 2
		}
		if format.JudgeCount <= 0 {
			format.JudgeCount = 2
		}
		d := &domain.Debate{
			ID:          s.newID(),
			MeetingID:   p.MeetingID,
			Affirmation: p.Affirmation,
			Status:      domain.DebatePlanned,
			Judges:      []string{},
			Teams:       []domain.Team{},
			Reserves:    []string{},
			Signups:     map[string]domain.Signup{},
			Flow:        p.Flow,
			Rubric:      p.Rubric,
			Format:      format,
			CreatedAt:   s.now().Unix(),
		}
		s.regenStepCodes(d)
		doc.Debates = append(doc.Debates, d)
		return d, nil
	})
}

// List returns every debate in the document.
func (s *DebateService) List(ctx context.Context) ([]*domain.Debate, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) ([]*domain.Debate, error) {
		return doc.Debates, nil
	})
}

// Get returns one debate by id.
func (s *DebateService) Get(ctx context.Context, id string) (*domain.Debate, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) (*domain.Debate, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return nil, domain.ErrDebateNotFound
		}
		return d, nil
	})
}

// Register upserts a signup; a member registering again simply changes
// their choice.
func (s *DebateService) Register(ctx context.Context, id, email string, choice domain.SignupChoice) error {
	em := domain.NormalizeEmail(email)
	if em == "" {
		return domain.Validation("missing email")
	}
	switch choice {
	case domain.ChoiceJudge, domain.ChoiceAdvocate, domain.ChoiceAny, domain.ChoiceNone:
	default:
		return domain.Validation("unknown signup choice")
	}
	_, err := updateDocument(ctx, s.store, func(doc *domain.Document) (struct{}, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return struct{}{}, domain.ErrDebateNotFound
		}
		if d.Signups == nil {
			d.Signups = map[string]domain.Signup{}
		}
		d.Signups[em] = domain.Signup{Choice: choice}
		return struct{}{}, nil
	})
	return err
}

// Randomize runs the assignment planner over the current signups and, on
// success, installs the seat map. Planner failures leave the debate
// untouched.
func (s *DebateService) Randomize(ctx context.Context, id string) (Assignment, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) (Assignment, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return Assignment{}, domain.ErrDebateNotFound
		}
		plan, err := PlanAssignment(doc, d, s.newRand())
		if err != nil {
			return Assignment{}, err
		}
		d.Judges = plan.Judges
		d.Teams = plan.Teams
		d.Reserves = plan.Reserves
		return plan, nil
	})
}

// SubmitJuryBallot records one judge's scores for one step. The judge's
// previous record for that step is fully replaced, never merged.
func (s *DebateService) SubmitJuryBallot(ctx context.Context, id string, in JuryBallotInput) error {
	em := domain.NormalizeEmail(in.Email)
	if em == "" {
		return domain.Validation("missing email")
	}
	snap, err := updateDocument(ctx, s.store, func(doc *domain.Document) (ScoreSnapshot, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return ScoreSnapshot{}, domain.ErrDebateNotFound
		}
		if in.Step < 0 || in.Step >= len(d.Flow) {
			return ScoreSnapshot{}, domain.ErrInvalidStep
		}
		step := d.Flow[in.Step]
		if !step.Action.AcceptsJury() {
			return ScoreSnapshot{}, domain.ErrNotVotingStep
		}
		if !d.IsJudge(em) {
			return ScoreSnapshot{}, domain.ErrNotAJuror
		}

		ballot := domain.JudgeBallot{}
		if step.Action.Simple() {
			if in.TeamChoice == "" {
				return ScoreSnapshot{}, domain.ErrMissingTeamChoice
			}
			if _, ok := d.TeamByID(in.TeamChoice); !ok {
				return ScoreSnapshot{}, domain.ErrUnknownTeam
			}
			ballot[in.TeamChoice] = map[string]float64{domain.SimpleCriterionKey: 1.0}
		} else {
			rubric := d.RubricForRound(step.Round)
			criteria := make(map[string]domain.Criterion, len(rubric))
			for _, c := range rubric {
				criteria[c.Key] = c
			}
			for teamID, values := range in.Values {
				if _, ok := d.TeamByID(teamID); !ok {
					return ScoreSnapshot{}, domain.ErrUnknownTeam
				}
				for key, raw := range values {
					c, ok := criteria[key]
					if !ok {
						continue
					}
					v := raw
					if v < c.Min {
						v = c.Min
					}
					if v > c.Max {
						v = c.Max
					}
					if ballot[teamID] == nil {
						ballot[teamID] = map[string]float64{}
					}
					ballot[teamID][key] = v
				}
			}
		}

		if d.Scores.Jury == nil {
			d.Scores.Jury = map[int]map[string]domain.JudgeBallot{}
		}
		if d.Scores.Jury[in.Step] == nil {
			d.Scores.Jury[in.Step] = map[string]domain.JudgeBallot{}
		}
		d.Scores.Jury[in.Step][em] = ballot
		return snapshotOf(d), nil
	})
	if err != nil {
		return err
	}
	s.scores.Publish(id, snap)
	return nil
}

// SubmitPublicVote records or moves one audience member's single weighted
// vote for a step. A re-vote decrements the previous team before
// incrementing the new one; voting for the same team twice is a no-op.
func (s *DebateService) SubmitPublicVote(ctx context.Context, id string, in PublicVoteInput) error {
	em := domain.NormalizeEmail(in.Email)
	if em == "" || in.TeamID == "" {
		return domain.Validation("missing email or team choice")
	}
	snap, err := updateDocument(ctx, s.store, func(doc *domain.Document) (ScoreSnapshot, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return ScoreSnapshot{}, domain.ErrDebateNotFound
		}
		if in.Step < 0 || in.Step >= len(d.Flow) {
			return ScoreSnapshot{}, domain.ErrInvalidStep
		}
		if !d.Flow[in.Step].Action.AcceptsPublic() {
			return ScoreSnapshot{}, domain.ErrNotVotingStep
		}
		invited := map[string]domain.MeetingParticipant{}
		if meeting, ok := doc.MeetingByID(d.MeetingID); ok {
			invited = meeting.InvitedEmails()
		}
		if _, ok := invited[em]; !ok {
			return ScoreSnapshot{}, domain.ErrNotInvited
		}
		if d.IsJudge(em) || d.IsTeamMember(em) {
			return ScoreSnapshot{}, domain.ErrIneligibleVoter
		}
		if _, ok := d.TeamByID(in.TeamID); !ok {
			return ScoreSnapshot{}, domain.ErrUnknownTeam
		}

		if d.Scores.Public == nil {
			d.Scores.Public = map[int]*domain.PublicTally{}
		}
		tally := d.Scores.Public[in.Step]
		if tally == nil {
			tally = &domain.PublicTally{Votes: map[string]int{}, Voters: map[string]string{}}
			d.Scores.Public[in.Step] = tally
		}
		prev := tally.Voters[em]
		if prev == in.TeamID {
			// Same choice again; the tally must not grow.
			return snapshotOf(d), nil
		}
		if prev != "" {
			if tally.Votes[prev] > 0 {
				tally.Votes[prev]--
			}
		}
		tally.Voters[em] = in.TeamID
		tally.Votes[in.TeamID]++
		return snapshotOf(d), nil
	})
	if err != nil {
		return err
	}
	s.scores.Publish(id, snap)
	return nil
}

// StartLive flips the debate live: status and the live sub-flag move
// together. Restarting while already live refreshes the start timestamp.
func (s *DebateService) StartLive(ctx context.Context, id string) (domain.LiveState, error) {
	live, err := updateDocument(ctx, s.store, func(doc *domain.Document) (domain.LiveState, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return domain.LiveState{}, domain.ErrDebateNotFound
		}
		if d.Status == domain.DebateFinished {
			return domain.LiveState{}, domain.InvalidState("debate already finished")
		}
		d.Status = domain.DebateLive
		d.Live = domain.LiveState{Active: true, StartedAt: s.now().Unix()}
		return d.Live, nil
	})
	if err != nil {
		return domain.LiveState{}, err
	}
	s.publishSnapshot(ctx, id)
	return live, nil
}

// StopLive terminates the debate and hands the final structure to the
// reward collaborator inside the same atomic write.
func (s *DebateService) StopLive(ctx context.Context, id string) (domain.LiveState, error) {
	live, err := updateDocument(ctx, s.store, func(doc *domain.Document) (domain.LiveState, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return domain.LiveState{}, domain.ErrDebateNotFound
		}
		if d.Status != domain.DebateLive {
			return domain.LiveState{}, domain.InvalidState("debate is not live")
		}
		d.Status = domain.DebateFinished
		d.Live.Active = false
		if s.rewards != nil {
			s.rewards.AwardDebate(doc, d, s.now())
		}
		return d.Live, nil
	})
	if err != nil {
		return domain.LiveState{}, err
	}
	s.publishSnapshot(ctx, id)
	return live, nil
}

// Live returns the live sub-state for polling clients.
func (s *DebateService) Live(ctx context.Context, id string) (domain.LiveState, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) (domain.LiveState, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return domain.LiveState{}, domain.ErrDebateNotFound
		}
		return d.Live, nil
	})
}

// Snapshot returns the score view clients poll or stream.
func (s *DebateService) Snapshot(ctx context.Context, id string) (ScoreSnapshot, error) {
	return readDocument(ctx, s.store, func(doc *domain.Document) (ScoreSnapshot, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return ScoreSnapshot{}, domain.ErrDebateNotFound
		}
		return snapshotOf(d), nil
	})
}

// UpdateFlow replaces the flow steps; codes are regenerated after every
// structural edit.
func (s *DebateService) UpdateFlow(ctx context.Context, id string, steps []domain.Step) ([]domain.Step, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) ([]domain.Step, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return nil, domain.ErrDebateNotFound
		}
		d.Flow = steps
		s.regenStepCodes(d)
		return d.Flow, nil
	})
}

// RegenerateStepCodes re-stamps every voting step with a fresh code
// version; same link shape, new token.
func (s *DebateService) RegenerateStepCodes(ctx context.Context, id string) ([]domain.Step, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) ([]domain.Step, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return nil, domain.ErrDebateNotFound
		}
		s.regenStepCodes(d)
		return d.Flow, nil
	})
}

// RegenerateRegistrationCode re-stamps the signup link for this debate.
func (s *DebateService) RegenerateRegistrationCode(ctx context.Context, id string) (*domain.CodeRef, error) {
	return updateDocument(ctx, s.store, func(doc *domain.Document) (*domain.CodeRef, error) {
		d, ok := doc.DebateByID(id)
		if !ok {
			return nil, domain.ErrDebateNotFound
		}
		ref := s.links.MakeCode(s.links.MakeLink(LinkRegistration, d.ID, 0))
		d.RegistrationQR = &ref
		return d.RegistrationQR, nil
	})
}

// Subscribe streams score snapshots for one debate.
func (s *DebateService) Subscribe(ctx context.Context, id string) (<-chan ScoreSnapshot, func(), error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.scores.Subscribe(id)
	return ch, cancel, nil
}

// regenStepCodes stamps voting steps with collaborator-built links and
// fresh tokens; non-voting steps lose any stale code.
func (s *DebateService) regenStepCodes(d *domain.Debate) {
	for i := range d.Flow {
		step := &d.Flow[i]
		if !step.Action.Voting() {
			step.QR = nil
			continue
		}
		switch {
		case step.Action.AcceptsJury() && step.Action.AcceptsPublic():
			jury := s.links.MakeCode(s.links.MakeLink(LinkJury, d.ID, i))
			public := s.links.MakeCode(s.links.MakeLink(LinkPublic, d.ID, i))
			step.QR = &domain.StepQR{CodeRef: jury, Type: string(step.Action), Jury: &jury, Public: &public}
		case step.Action.AcceptsJury():
			jury := s.links.MakeCode(s.links.MakeLink(LinkJury, d.ID, i))
			step.QR = &domain.StepQR{CodeRef: jury, Type: "jury"}
		default:
			public := s.links.MakeCode(s.links.MakeLink(LinkPublic, d.ID, i))
			step.QR = &domain.StepQR{CodeRef: public, Type: "public"}
		}
	}
}

func (s *DebateService) publishSnapshot(ctx context.Context, id string) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return
	}
	s.scores.Publish(id, snap)
}

func snapshotOf(d *domain.Debate) ScoreSnapshot {
	snap := ScoreSnapshot{
		DebateID: d.ID,
		Active:   d.Live.Active,
		Teams:    make([]TeamRef, 0, len(d.Teams)),
	}
	for _, t := range d.Teams {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		snap.Teams = append(snap.Teams, TeamRef{ID: t.ID, Name: name})
	}
	if d.Live.Active {
		snap.Totals = ComputeTotals(d)
		scores := d.Scores
		snap.Scores = &scores
	}
	return snap
}
