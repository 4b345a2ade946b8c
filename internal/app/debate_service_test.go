package app_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/memory"
)

func debateFixtureDoc() *domain.Document {
	doc := domain.NewDocument()
	for _, em := range []string{"judge@x.com", "judy@x.com", "m1@x.com", "m2@x.com", "m3@x.com", "m4@x.com", "aud@x.com", "aud2@x.com"} {
		doc.Members = append(doc.Members, domain.Member{Email: em})
	}
	participants := make([]domain.MeetingParticipant, 0, len(doc.Members))
	for _, m := range doc.Members {
		participants = append(participants, domain.MeetingParticipant{Email: m.Email})
	}
	doc.Meetings = append(doc.Meetings, domain.Meeting{ID: "mt1", Title: "Weekly", Participants: participants})
	doc.Debates = append(doc.Debates, &domain.Debate{
		ID:          "d1",
		MeetingID:   "mt1",
		Affirmation: "Tabs beat spaces",
		Status:      domain.DebatePlanned,
		Judges:      []string{"judge@x.com", "judy@x.com"},
		Teams: []domain.Team{
			{ID: "t1", Name: "Pro", Members: []string{"m1@x.com", "m2@x.com"}},
			{ID: "t2", Name: "Con", Members: []string{"m3@x.com", "m4@x.com"}},
		},
		Reserves: []string{},
		Flow: []domain.Step{
			{Title: "Opening", Action: domain.ActionNone},
			{Title: "Round 1", Action: domain.ActionJuryVote, Round: "r1"},
			{Title: "Audience", Action: domain.ActionPublicVote},
			{Title: "Verdict", Action: domain.ActionSimpleJuryPublic},
		},
		Rubric: []domain.Criterion{
			{Key: "clarity", Label: "Clarity", Min: 0, Max: 5},
			{Key: "logic", Label: "Logic", Min: 0, Max: 10, Type: domain.CriterionRound, Round: "r1"},
		},
		Format: domain.Format{TeamCount: 2, TeamSize: 2, JudgeCount: 2},
	})
	return doc
}

func newDebateFixture(t *testing.T) (*app.DebateService, *memory.DocumentStore) {
	t.Helper()
	store, err := memory.NewDocumentStoreWithDocument(debateFixtureDoc())
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := app.NewDebateServiceWithClock(store, stubLinks{}, app.NewLedgerRewards(func() string { return "entry" }),
		func() time.Time { return time.Unix(1_700_000_000, 0) },
		func() *rand.Rand { return rand.New(rand.NewSource(7)) })
	return svc, store
}

func TestCreateStampsVotingStepCodes(t *testing.T) {
	svc, _ := newDebateFixture(t)
	d, err := svc.Create(context.Background(), app.CreateDebateParams{
		MeetingID:   "mt1",
		Affirmation: "Monoliths age better",
		Flow: []domain.Step{
			{Title: "Warmup", Action: domain.ActionNone},
			{Title: "Main", Action: domain.ActionJuryPublic},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Format.TeamCount != 2 || d.Format.TeamSize != 2 || d.Format.JudgeCount != 2 {
		t.Fatalf("format defaults missing: %+v", d.Format)
	}
	if d.Flow[0].QR != nil {
		t.Fatalf("non-voting step must not carry a code")
	}
	qr := d.Flow[1].QR
	if qr == nil || qr.Jury == nil || qr.Public == nil {
		t.Fatalf("combined step needs both codes, got %+v", qr)
	}
}

func TestCreateRejectsUnknownMeeting(t *testing.T) {
	svc, _ := newDebateFixture(t)
	_, err := svc.Create(context.Background(), app.CreateDebateParams{
		MeetingID:   "ghost",
		Affirmation: "Nobody scheduled this",
	})
	if !errors.Is(err, domain.ErrMeetingNotFound) {
		t.Fatalf("expected meeting not found, got %v", err)
	}
}

func TestRegisterValidatesChoice(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()
	if err := svc.Register(ctx, "d1", "m1@x.com", "captain"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.Register(ctx, "d1", "M1@X.com ", domain.ChoiceJudge); err != nil {
		t.Fatalf("register: %v", err)
	}
	d, _ := svc.Get(ctx, "d1")
	if d.Signups["m1@x.com"].Choice != domain.ChoiceJudge {
		t.Fatalf("signup not normalized/upserted: %+v", d.Signups)
	}
}

func TestRandomizeInstallsSeatMap(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()
	for _, em := range []string{"judge@x.com", "judy@x.com"} {
		if err := svc.Register(ctx, "d1", em, domain.ChoiceJudge); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	for _, em := range []string{"m1@x.com", "m2@x.com", "m3@x.com", "m4@x.com"} {
		if err := svc.Register(ctx, "d1", em, domain.ChoiceAdvocate); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	plan, err := svc.Randomize(ctx, "d1")
	if err != nil {
		t.Fatalf("randomize: %v", err)
	}
	if len(plan.Judges) != 2 || len(plan.Teams) != 2 {
		t.Fatalf("bad plan: %+v", plan)
	}
	d, _ := svc.Get(ctx, "d1")
	if len(d.Judges) != 2 || len(d.Teams[0].Members) != 2 || len(d.Teams[1].Members) != 2 {
		t.Fatalf("plan not installed: %+v", d)
	}
}

func TestJuryBallotClampsToRubric(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()
	err := svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{
		Email: "judge@x.com",
		Step:  1,
		Values: map[string]map[string]float64{
			"t1": {"clarity": 9, "logic": -3, "invented": 7},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	d, _ := svc.Get(ctx, "d1")
	ballot := d.Scores.Jury[1]["judge@x.com"]
	if ballot["t1"]["clarity"] != 5 {
		t.Fatalf("clarity must clamp to max 5, got %v", ballot["t1"]["clarity"])
	}
	if ballot["t1"]["logic"] != 0 {
		t.Fatalf("logic must clamp to min 0, got %v", ballot["t1"]["logic"])
	}
	if _, ok := ballot["t1"]["invented"]; ok {
		t.Fatalf("unknown criterion keys must be dropped")
	}
}

func TestJuryBallotReplacesPrevious(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()
	first := app.JuryBallotInput{Email: "judge@x.com", Step: 1,
		Values: map[string]map[string]float64{"t1": {"clarity": 3}, "t2": {"clarity": 2}}}
	if err := svc.SubmitJuryBallot(ctx, "d1", first); err != nil {
		t.Fatalf("first ballot: %v", err)
	}
	second := app.JuryBallotInput{Email: "judge@x.com", Step: 1,
		Values: map[string]map[string]float64{"t1": {"clarity": 5}}}
	if err := svc.SubmitJuryBallot(ctx, "d1", second); err != nil {
		t.Fatalf("second ballot: %v", err)
	}
	d, _ := svc.Get(ctx, "d1")
	ballot := d.Scores.Jury[1]["judge@x.com"]
	if ballot["t1"]["clarity"] != 5 {
		t.Fatalf("latest ballot must win, got %v", ballot)
	}
	if _, stale := ballot["t2"]; stale {
		t.Fatalf("replacement must not merge the previous ballot: %v", ballot)
	}
}

func TestJuryBallotGuards(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()

	err := svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "aud@x.com", Step: 1,
		Values: map[string]map[string]float64{"t1": {"clarity": 3}}})
	if !errors.Is(err, domain.ErrNotAJuror) {
		t.Fatalf("expected juror rejection, got %v", err)
	}

	err = svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 0})
	if !errors.Is(err, domain.ErrNotVotingStep) {
		t.Fatalf("expected non-voting step rejection, got %v", err)
	}

	err = svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 99})
	if !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("expected step range rejection, got %v", err)
	}

	err = svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 1,
		Values: map[string]map[string]float64{"tx": {"clarity": 3}}})
	if !errors.Is(err, domain.ErrUnknownTeam) {
		t.Fatalf("expected unknown team rejection, got %v", err)
	}
}

func TestSimpleBallotStoresTeamChoice(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()

	err := svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 3})
	if !errors.Is(err, domain.ErrMissingTeamChoice) {
		t.Fatalf("expected missing choice, got %v", err)
	}

	if err := svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 3, TeamChoice: "t2"}); err != nil {
		t.Fatalf("simple ballot: %v", err)
	}
	d, _ := svc.Get(ctx, "d1")
	if d.Scores.Jury[3]["judge@x.com"]["t2"][domain.SimpleCriterionKey] != 1.0 {
		t.Fatalf("simple ballot not stored: %+v", d.Scores.Jury[3])
	}
}

func TestPublicVoteMovesOnRevote(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()

	if err := svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "aud@x.com", Step: 2, TeamID: "t1"}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	// Same team again must not inflate the tally.
	if err := svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "aud@x.com", Step: 2, TeamID: "t1"}); err != nil {
		t.Fatalf("re-vote same: %v", err)
	}
	d, _ := svc.Get(ctx, "d1")
	if d.Scores.Public[2].Votes["t1"] != 1 {
		t.Fatalf("same-team re-vote must be a no-op, got %v", d.Scores.Public[2].Votes)
	}

	// Switching moves the single vote.
	if err := svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "aud@x.com", Step: 2, TeamID: "t2"}); err != nil {
		t.Fatalf("switch vote: %v", err)
	}
	d, _ = svc.Get(ctx, "d1")
	tally := d.Scores.Public[2]
	if tally.Votes["t1"] != 0 || tally.Votes["t2"] != 1 {
		t.Fatalf("vote must move, got %v", tally.Votes)
	}
	if tally.Voters["aud@x.com"] != "t2" {
		t.Fatalf("voter record must follow, got %v", tally.Voters)
	}
}

func TestPublicVoteEligibility(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()

	err := svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "stranger@x.com", Step: 2, TeamID: "t1"})
	if !errors.Is(err, domain.ErrNotInvited) {
		t.Fatalf("expected invite rejection, got %v", err)
	}
	err = svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "judge@x.com", Step: 2, TeamID: "t1"})
	if !errors.Is(err, domain.ErrIneligibleVoter) {
		t.Fatalf("judges cannot vote, got %v", err)
	}
	err = svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "m1@x.com", Step: 2, TeamID: "t1"})
	if !errors.Is(err, domain.ErrIneligibleVoter) {
		t.Fatalf("team members cannot vote, got %v", err)
	}
	err = svc.SubmitPublicVote(ctx, "d1", app.PublicVoteInput{Email: "aud@x.com", Step: 1, TeamID: "t1"})
	if !errors.Is(err, domain.ErrNotVotingStep) {
		t.Fatalf("jury-only steps reject public votes, got %v", err)
	}
}

func TestLiveLifecycleAndSnapshotGating(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, "d1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Active || snap.Totals != nil || snap.Scores != nil {
		t.Fatalf("totals must stay hidden before live, got %+v", snap)
	}

	live, err := svc.StartLive(ctx, "d1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !live.Active || live.StartedAt == 0 {
		t.Fatalf("live flag not set: %+v", live)
	}

	snap, _ = svc.Snapshot(ctx, "d1")
	if !snap.Active || snap.Totals == nil {
		t.Fatalf("live snapshot must expose totals, got %+v", snap)
	}

	live, err = svc.StopLive(ctx, "d1")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if live.Active {
		t.Fatalf("stop must clear the flag")
	}
	if _, err := svc.StopLive(ctx, "d1"); domain.KindOf(err) != domain.KindInvalidState {
		t.Fatalf("double stop must fail, got %v", err)
	}
	if _, err := svc.StartLive(ctx, "d1"); domain.KindOf(err) != domain.KindInvalidState {
		t.Fatalf("restarting a finished debate must fail, got %v", err)
	}
}

func TestStopLiveAwardsLedgerOnce(t *testing.T) {
	svc, store := newDebateFixture(t)
	ctx := context.Background()

	// t1 wins on jury points.
	if err := svc.SubmitJuryBallot(ctx, "d1", app.JuryBallotInput{Email: "judge@x.com", Step: 1,
		Values: map[string]map[string]float64{"t1": {"clarity": 5}}}); err != nil {
		t.Fatalf("ballot: %v", err)
	}
	if _, err := svc.StartLive(ctx, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.StopLive(ctx, "d1"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	doc, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var winners, participants int
	for _, e := range doc.PointsEntries {
		switch e.Criteria {
		case app.CriteriaDebateWinner:
			winners++
			if e.Points != 0 {
				t.Fatalf("winner badge must carry zero points, got %v", e.Points)
			}
		case app.CriteriaDebateParticipant:
			participants++
			if e.Points != 1 {
				t.Fatalf("participation is worth one point, got %v", e.Points)
			}
		}
	}
	// Two winning members get badges; two losing members and two judges get
	// participation points.
	if winners != 2 || participants != 4 {
		t.Fatalf("expected 2 winner + 4 participant entries, got %d/%d", winners, participants)
	}

	// Re-awarding the same finished debate dedups on (member, criteria,
	// debate) and appends nothing.
	d, ok := doc.DebateByID("d1")
	if !ok {
		t.Fatalf("debate missing after stop")
	}
	before := len(doc.PointsEntries)
	app.NewLedgerRewards(func() string { return "rerun" }).AwardDebate(doc, d, time.Unix(1_700_000_100, 0))
	if len(doc.PointsEntries) != before {
		t.Fatalf("repeat award must be a no-op, got %d entries after %d", len(doc.PointsEntries), before)
	}
}

func TestUpdateFlowRegeneratesCodes(t *testing.T) {
	svc, _ := newDebateFixture(t)
	ctx := context.Background()
	steps, err := svc.UpdateFlow(ctx, "d1", []domain.Step{
		{Title: "Only step", Action: domain.ActionPublicVote},
	})
	if err != nil {
		t.Fatalf("update flow: %v", err)
	}
	if len(steps) != 1 || steps[0].QR == nil {
		t.Fatalf("new voting step needs a code, got %+v", steps)
	}
}

func TestDebateNotFound(t *testing.T) {
	svc, _ := newDebateFixture(t)
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrDebateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
