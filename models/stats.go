package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserStatistics holds per-user running betting totals. The row is
// updated inside the same database transaction as the bet settlement it
// reflects, so the counters never drift from the bets table.
type UserStatistics struct {
	UserID            int64           `db:"user_id"`
	TotalBets         int             `db:"total_bets"`
	TotalWins         int             `db:"total_wins"`
	TotalWagered      decimal.Decimal `db:"total_wagered"`
	TotalWon          decimal.Decimal `db:"total_won"`
	BiggestWin        decimal.Decimal `db:"biggest_win"`
	BiggestMultiplier decimal.Decimal `db:"biggest_multiplier"`
	WinRate           decimal.Decimal `db:"win_rate"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// RecalculateWinRate sets WinRate to wins/bets as a 0-100 percentage,
// rounded half-up to 2 decimals. Zero bets means a zero rate.
func (s *UserStatistics) RecalculateWinRate() {
	if s.TotalBets == 0 {
		s.WinRate = decimal.Zero
		return
	}
	s.WinRate = decimal.NewFromInt(int64(s.TotalWins)).
		Div(decimal.NewFromInt(int64(s.TotalBets))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// RecordOutcome folds one settled bet into the running totals. Cancelled
// bets never reach here; they are voided, not outcomes.
func (s *UserStatistics) RecordOutcome(stake, payout, multiplier decimal.Decimal, won bool) {
	s.TotalBets++
	s.TotalWagered = s.TotalWagered.Add(stake)
	if won {
		s.TotalWins++
		s.TotalWon = s.TotalWon.Add(payout)
		s.BiggestWin = decimal.Max(s.BiggestWin, payout)
		s.BiggestMultiplier = decimal.Max(s.BiggestMultiplier, multiplier)
	}
	s.RecalculateWinRate()
}

// LeaderboardEntry is one row of the total-won leaderboard
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	TotalWon  decimal.Decimal `json:"total_won"`
	TotalBets int             `json:"total_bets"`
	WinRate   decimal.Decimal `json:"win_rate"`
}
