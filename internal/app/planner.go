package app

import (
	"fmt"
	"math/rand"
	"sort"

	"live-arena-service/internal/domain"
)

// Assignment is the planner's one-shot output: a full seat map for a
// debate. The three slices are pairwise disjoint and cover every eligible
// signup.
type Assignment struct {
	Judges   []string
	Teams    []domain.Team
	Reserves []string
}

// PlanAssignment partitions a debate's signup pool into judges, teams and
// reserves under the debate's format. Candidates with fewer historical
// participations are preferred; ties break uniformly at random via rnd, so
// a fixed seed reproduces the exact plan. The input document and debate are
// never mutated. Failures wrap ErrInsufficientParticipants,
// ErrInsufficientJudges or ErrTeamUnderfilled.
func PlanAssignment(doc *domain.Document, debate *domain.Debate, rnd *rand.Rand) (Assignment, error) {
	format := debate.Format
	if format.TeamCount <= 0 {
		format.TeamCount = 2
	}
	if format.TeamSize <= 0 {
		format.TeamSize = 2
	}
	if format.JudgeCount <= 0 {
		format.JudgeCount = 2
	}
	totalSlots := format.TeamCount * format.TeamSize

	eligible := func(email string) bool {
		m, ok := doc.MemberByEmail(email)
		return ok && !m.External
	}

	var judgesOnly, advocatesOnly, anyRole []string
	for email, signup := range debate.Signups {
		em := domain.NormalizeEmail(email)
		if em == "" || !eligible(em) {
			continue
		}
		switch signup.Choice {
		case domain.ChoiceJudge:
			judgesOnly = append(judgesOnly, em)
		case domain.ChoiceAdvocate:
			advocatesOnly = append(advocatesOnly, em)
		case domain.ChoiceAny:
			anyRole = append(anyRole, em)
		}
	}
	// Map iteration order is random; pin it down before the seeded shuffle
	// decisions so a fixed seed is reproducible.
	sort.Strings(judgesOnly)
	sort.Strings(advocatesOnly)
	sort.Strings(anyRole)

	allEligible := dedupe(append(append(append([]string{}, judgesOnly...), advocatesOnly...), anyRole...))
	if len(allEligible) < totalSlots+format.JudgeCount {
		return Assignment{}, fmt.Errorf("%w (need %d, have %d)",
			domain.ErrInsufficientParticipants, totalSlots+format.JudgeCount, len(allEligible))
	}

	// Judges come out of judgesOnly+anyRole; every any-role member spent on
	// the jury shrinks the advocate pool.
	judgesFromAny := format.JudgeCount - len(judgesOnly)
	if judgesFromAny < 0 {
		judgesFromAny = 0
	}
	advocatesAvailable := len(advocatesOnly) + len(anyRole) - judgesFromAny
	if advocatesAvailable < totalSlots {
		return Assignment{}, fmt.Errorf("%w: %d advocates left after judge selection, need %d",
			domain.ErrInsufficientParticipants, advocatesAvailable, totalSlots)
	}

	judgesPool := dedupe(append(append([]string{}, judgesOnly...), anyRole...))
	advocatesPool := dedupe(append(append([]string{}, advocatesOnly...), anyRole...))
	if len(judgesPool) < format.JudgeCount {
		return Assignment{}, fmt.Errorf("%w (need %d, have %d)",
			domain.ErrInsufficientJudges, format.JudgeCount, len(judgesPool))
	}

	sortByFairness(judgesPool, doc, rnd)
	sortByFairness(advocatesPool, doc, rnd)

	judgesOnlySet := toSet(judgesOnly)
	picked := pickJudges(judgesPool, judgesOnlySet, doc, format.JudgeCount)

	pickedSet := toSet(picked)
	var remaining []string
	for _, em := range advocatesPool {
		if _, taken := pickedSet[em]; !taken {
			remaining = append(remaining, em)
		}
	}

	// Shuffle within each studio bucket, concatenate, then reshuffle the
	// whole pool before dealing.
	cc, ws, other := splitByStudio(remaining, doc)
	shuffle(cc, rnd)
	shuffle(ws, rnd)
	shuffle(other, rnd)
	pool := append(append(cc, ws...), other...)
	shuffle(pool, rnd)

	teams := teamShells(debate, format.TeamCount)
	order := rnd.Perm(len(teams))
	used := make(map[string]struct{}, totalSlots)
	// Round-robin deal until every team reaches team_size or the pool runs
	// dry.
	for filled := true; filled; {
		filled = false
		for _, ti := range order {
			t := &teams[ti]
			if len(t.Members) >= format.TeamSize || len(pool) == 0 {
				continue
			}
			member := pool[0]
			pool = pool[1:]
			t.Members = append(t.Members, member)
			used[member] = struct{}{}
			filled = true
		}
	}
	for _, t := range teams {
		if len(t.Members) != format.TeamSize {
			return Assignment{}, fmt.Errorf("%w: team %s has %d of %d members",
				domain.ErrTeamUnderfilled, t.ID, len(t.Members), format.TeamSize)
		}
	}

	var reserves []string
	for _, em := range allEligible {
		if _, taken := pickedSet[em]; taken {
			continue
		}
		if _, taken := used[em]; taken {
			continue
		}
		reserves = append(reserves, em)
	}
	shuffle(reserves, rnd)

	return Assignment{Judges: picked, Teams: teams, Reserves: reserves}, nil
}

// participationCount scans every debate for appearances of the email as
// judge, team member or reserve.
func participationCount(doc *domain.Document, email string) int {
	em := domain.NormalizeEmail(email)
	count := 0
	for _, d := range doc.Debates {
		for _, j := range d.Judges {
			if domain.NormalizeEmail(j) == em {
				count++
			}
		}
		for _, t := range d.Teams {
			for _, m := range t.Members {
				if domain.NormalizeEmail(m) == em {
					count++
				}
			}
		}
		for _, r := range d.Reserves {
			if domain.NormalizeEmail(r) == em {
				count++
			}
		}
	}
	return count
}

// sortByFairness orders ascending by participation count with a seeded
// random tiebreak, so less-active members come first and equal ranks are
// uniformly shuffled.
func sortByFairness(pool []string, doc *domain.Document, rnd *rand.Rand) {
	type ranked struct {
		email string
		count int
		tie   float64
	}
	rs := make([]ranked, len(pool))
	for i, em := range pool {
		rs[i] = ranked{email: em, count: participationCount(doc, em), tie: rnd.Float64()}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].count != rs[j].count {
			return rs[i].count < rs[j].count
		}
		return rs[i].tie < rs[j].tie
	})
	for i := range rs {
		pool[i] = rs[i].email
	}
}

// pickJudges fills judge seats preferring judge-only signups over any-role
// ones, splitting seats between the CC and WSOP studios as evenly as
// integer division allows; the remainder lands in the untagged bucket.
func pickJudges(pool []string, judgesOnly map[string]struct{}, doc *domain.Document, judgeCount int) []string {
	take := func(src []string, n int, out *[]string, chosen map[string]struct{}) int {
		taken := 0
		for _, em := range src {
			if taken >= n {
				break
			}
			if _, dup := chosen[em]; dup {
				continue
			}
			*out = append(*out, em)
			chosen[em] = struct{}{}
			taken++
		}
		return taken
	}

	cc, ws, other := splitByStudio(pool, doc)
	filterOnly := func(src []string) []string {
		out := make([]string, 0, len(src))
		for _, em := range src {
			if _, ok := judgesOnly[em]; ok {
				out = append(out, em)
			}
		}
		return out
	}

	picked := make([]string, 0, judgeCount)
	chosen := make(map[string]struct{}, judgeCount)

	ccTaken := take(filterOnly(cc), judgeCount/2, &picked, chosen)
	wsTaken := take(filterOnly(ws), judgeCount-ccTaken, &picked, chosen)
	take(filterOnly(other), judgeCount-ccTaken-wsTaken, &picked, chosen)

	if need := judgeCount - len(picked); need > 0 {
		ccTaken = take(cc, need/2, &picked, chosen)
		wsTaken = take(ws, need-ccTaken, &picked, chosen)
		take(other, need-ccTaken-wsTaken, &picked, chosen)
	}
	// Backstop when studio buckets are lopsided: fill from the whole pool
	// in fairness order.
	if len(picked) < judgeCount {
		take(pool, judgeCount-len(picked), &picked, chosen)
	}
	return picked
}

// teamShells reuses existing team ids and names up to teamCount, padding
// with generated ones, and starts every team empty.
func teamShells(debate *domain.Debate, teamCount int) []domain.Team {
	teams := make([]domain.Team, 0, teamCount)
	for i := 0; i < teamCount; i++ {
		t := domain.Team{ID: fmt.Sprintf("t%d", i+1), Name: fmt.Sprintf("Team %d", i+1)}
		if i < len(debate.Teams) {
			t.ID = debate.Teams[i].ID
			if debate.Teams[i].Name != "" {
				t.Name = debate.Teams[i].Name
			}
		}
		t.Members = []string{}
		teams = append(teams, t)
	}
	return teams
}

func splitByStudio(pool []string, doc *domain.Document) (cc, ws, other []string) {
	for _, em := range pool {
		switch doc.StudioOf(em) {
		case "CC":
			cc = append(cc, em)
		case "WSOP":
			ws = append(ws, em)
		default:
			other = append(other, em)
		}
	}
	return cc, ws, other
}

func shuffle(s []string, rnd *rand.Rand) {
	rnd.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}

func dedupe(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, v := range s {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(s []string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}
