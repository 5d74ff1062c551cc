package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// autoCashoutScanner settles bets whose auto-cashout threshold the
// multiplier has reached. Each bet settles at its threshold, not at the
// live multiplier, so a delayed tick can never inflate a payout.
type autoCashoutScanner struct {
	registry *Registry
	settler  *settler
}

// scan claims all due bets and dispatches their win settlements.
// Returns how many bets were dispatched.
func (s *autoCashoutScanner) scan(ctx context.Context, roundNumber int64, multiplier decimal.Decimal) int {
	due := s.registry.dueForAutoCashout(multiplier)
	for _, bet := range due {
		s.settler.submitWin(ctx, roundNumber, bet, *bet.autoCashout)
	}
	return len(due)
}
