package app

import (
	"sort"

	"live-arena-service/internal/domain"
)

// ComputeTotals turns a debate's raw vote state into per-team grand totals:
// the sum of all jury criterion values (simple choices count their stored
// 1.0 marker) plus one point per public step to each team tied for the most
// votes in that step. Safe to call at any time; an empty scores structure
// yields zero for every team.
func ComputeTotals(d *domain.Debate) map[string]float64 {
	totals := make(map[string]float64, len(d.Teams))
	for _, t := range d.Teams {
		if t.ID != "" {
			totals[t.ID] = 0.0
		}
	}

	for _, judges := range d.Scores.Jury {
		for _, ballot := range judges {
			for teamID, crits := range ballot {
				for _, v := range crits {
					totals[teamID] += v
				}
			}
		}
	}

	for _, tally := range d.Scores.Public {
		if tally == nil || len(tally.Votes) == 0 {
			continue
		}
		max := 0
		for _, n := range tally.Votes {
			if n > max {
				max = n
			}
		}
		if max == 0 {
			continue
		}
		// Ties award the step point to every leading team.
		for teamID, n := range tally.Votes {
			if n == max {
				totals[teamID] += 1.0
			}
		}
	}
	return totals
}

// WinningTeams returns the ids of the team(s) holding the best grand total,
// or nothing when the debate has no teams.
func WinningTeams(d *domain.Debate) []string {
	totals := ComputeTotals(d)
	if len(totals) == 0 {
		return nil
	}
	best := 0.0
	first := true
	for _, v := range totals {
		if first || v > best {
			best = v
			first = false
		}
	}
	var winners []string
	for id, v := range totals {
		if v == best {
			winners = append(winners, id)
		}
	}
	sort.Strings(winners)
	return winners
}

// Leaderboard snapshots a quiz session's players sorted by descending
// score, ties broken by nickname ascending so equal runs render stably.
func Leaderboard(s *domain.QuizSession) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(s.Players))
	for pid, p := range s.Players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: pid,
			Nickname: p.Nickname,
			Score:    p.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Nickname != entries[j].Nickname {
			return entries[i].Nickname < entries[j].Nickname
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	return entries
}
