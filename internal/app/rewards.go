package app

import (
	"fmt"
	"time"

	"live-arena-service/internal/domain"
)

// Reward criteria emitted when a debate reaches its terminal state.
const (
	CriteriaDebateParticipant = "debate_participant"
	CriteriaDebateWinner      = "debate_winner"
)

// RewardSink receives a debate that just finished and attributes ledger
// entries. Implementations own their idempotency, keyed by
// (member, criteria, debate).
type RewardSink interface {
	AwardDebate(doc *domain.Document, d *domain.Debate, now time.Time)
}

// LedgerRewards appends reward entries to the document's point ledger.
// Winning team members keep the winner badge but earn no points (the prize
// is awarded elsewhere); everyone else on a team, and every judge, earns a
// participation entry.
type LedgerRewards struct {
	Points map[string]float64
	newID  func() string
}

func NewLedgerRewards(newID func() string) *LedgerRewards {
	return &LedgerRewards{
		Points: map[string]float64{
			CriteriaDebateParticipant: 1,
			CriteriaDebateWinner:      0,
		},
		newID: newID,
	}
}

func (r *LedgerRewards) AwardDebate(doc *domain.Document, d *domain.Debate, now time.Time) {
	winners := make(map[string]struct{})
	if d.Status == domain.DebateFinished {
		winningTeams := toSet(WinningTeams(d))
		for _, t := range d.Teams {
			if _, won := winningTeams[t.ID]; !won {
				continue
			}
			for _, m := range t.Members {
				winners[domain.NormalizeEmail(m)] = struct{}{}
			}
		}
	}

	topic := d.Affirmation
	if topic == "" {
		topic = "QA Debate"
	}

	for _, t := range d.Teams {
		for _, m := range t.Members {
			em := domain.NormalizeEmail(m)
			if em == "" {
				continue
			}
			if _, won := winners[em]; won {
				continue
			}
			r.add(doc, d, em, CriteriaDebateParticipant, fmt.Sprintf("Participated in debate: %s", topic), now)
		}
	}
	for _, j := range d.Judges {
		em := domain.NormalizeEmail(j)
		if em == "" {
			continue
		}
		r.add(doc, d, em, CriteriaDebateParticipant, fmt.Sprintf("Jury member in debate: %s", topic), now)
	}
	for em := range winners {
		r.add(doc, d, em, CriteriaDebateWinner, fmt.Sprintf("Won debate: %s (badge only)", topic), now)
	}
}

// add appends one ledger entry unless an entry with the same member,
// criteria and debate already exists. No double-award on repeated stops.
func (r *LedgerRewards) add(doc *domain.Document, d *domain.Debate, email, criteria, reason string, now time.Time) {
	for _, e := range doc.PointsEntries {
		if e.MemberEmail == email && e.Criteria == criteria && e.DebateID == d.ID {
			return
		}
	}
	doc.PointsEntries = append(doc.PointsEntries, domain.PointsEntry{
		ID:          r.newID(),
		MemberEmail: email,
		Points:      r.Points[criteria],
		Reason:      reason,
		Criteria:    criteria,
		AddedBy:     "system",
		AddedAt:     now.Unix(),
		DebateID:    d.ID,
		MeetingID:   d.MeetingID,
	})
}
