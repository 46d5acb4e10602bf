package wordapi

// WinRate mirrors the server formula: a word that never lost counts as 1.0,
// including one that was never shown.
func WinRate(wins, losses int) float64 {
	if losses == 0 {
		return 1
	}
	return float64(wins) / float64(wins+losses)
}

// WinRatePercent is the win rate scaled to 0..100.
func (r Ranking) WinRatePercent() float64 { return r.WinRate * 100 }

// RankingsSummary aggregates a leaderboard for display.
type RankingsSummary struct {
	Words int
	// Votes counts recorded comparisons; every vote has exactly one winner.
	Votes int
	Top   *Ranking
}

func Summarize(rows []Ranking) RankingsSummary {
	s := RankingsSummary{Words: len(rows)}
	for i := range rows {
		s.Votes += rows[i].Wins
		if s.Top == nil || rows[i].WinRate > s.Top.WinRate {
			top := rows[i]
			s.Top = &top
		}
	}
	return s
}

// Top returns at most n leading rows. n <= 0 returns all of them.
func Top(rows []Ranking, n int) []Ranking {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
