package repository

import (
	"context"
	"fmt"

	"aviator/database"
	"aviator/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BetRepository implements the BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

// Create inserts a new bet and fills in its generated fields. The partial
// unique index on (user_id, round_id) rejects a second open bet for the
// same user in the same round, which backs up the in-memory check across
// processes.
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (user_id, round_id, amount, auto_cashout, status, payout)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		bet.UserID,
		bet.RoundID,
		bet.Amount,
		bet.AutoCashout,
		bet.Status,
		bet.Payout,
	).Scan(&bet.ID, &bet.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return models.StateConflictError{Reason: "user already has a bet in this round"}
		}
		return fmt.Errorf("failed to create bet for user %d: %w", bet.UserID, err)
	}

	return nil
}

// Settle moves a bet to a terminal status. The update only applies while
// the bet is still open, so a bet can never be settled twice even if two
// processes race.
func (r *BetRepository) Settle(ctx context.Context, betID int64, status models.BetStatus, cashoutMultiplier *decimal.Decimal, payout decimal.Decimal) error {
	query := `
		UPDATE bets
		SET status = $1, cashout_multiplier = $2, payout = $3, settled_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'active')
	`

	result, err := r.q.Exec(ctx, query, status, cashoutMultiplier, payout, betID)
	if err != nil {
		return fmt.Errorf("failed to settle bet %d: %w", betID, err)
	}

	if result.RowsAffected() == 0 {
		return models.StateConflictError{Reason: fmt.Sprintf("bet %d is not open", betID)}
	}

	return nil
}

// ActivateForRound moves all pending bets of a round to active. Returns
// the number of bets activated.
func (r *BetRepository) ActivateForRound(ctx context.Context, roundID int64) (int64, error) {
	query := `
		UPDATE bets
		SET status = 'active'
		WHERE round_id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to activate bets for round %d: %w", roundID, err)
	}

	return result.RowsAffected(), nil
}

// GetByID retrieves a bet by its ID
func (r *BetRepository) GetByID(ctx context.Context, betID int64) (*models.Bet, error) {
	query := `
		SELECT id, user_id, round_id, amount, auto_cashout, status,
		       cashout_multiplier, payout, created_at, settled_at
		FROM bets
		WHERE id = $1
	`

	var bet models.Bet
	err := r.q.QueryRow(ctx, query, betID).Scan(
		&bet.ID,
		&bet.UserID,
		&bet.RoundID,
		&bet.Amount,
		&bet.AutoCashout,
		&bet.Status,
		&bet.CashoutMultiplier,
		&bet.Payout,
		&bet.CreatedAt,
		&bet.SettledAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", betID, err)
	}

	return &bet, nil
}

// GetOpenByRound returns all bets of a round that have not reached a
// terminal status yet
func (r *BetRepository) GetOpenByRound(ctx context.Context, roundID int64) ([]*models.Bet, error) {
	query := `
		SELECT id, user_id, round_id, amount, auto_cashout, status,
		       cashout_multiplier, payout, created_at, settled_at
		FROM bets
		WHERE round_id = $1 AND status IN ('pending', 'active')
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open bets for round %d: %w", roundID, err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		var bet models.Bet
		err := rows.Scan(
			&bet.ID,
			&bet.UserID,
			&bet.RoundID,
			&bet.Amount,
			&bet.AutoCashout,
			&bet.Status,
			&bet.CashoutMultiplier,
			&bet.Payout,
			&bet.CreatedAt,
			&bet.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, &bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}

	return bets, nil
}

// ListByUser returns a user's bets, newest first
func (r *BetRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	query := `
		SELECT id, user_id, round_id, amount, auto_cashout, status,
		       cashout_multiplier, payout, created_at, settled_at
		FROM bets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets for user %d: %w", userID, err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		var bet models.Bet
		err := rows.Scan(
			&bet.ID,
			&bet.UserID,
			&bet.RoundID,
			&bet.Amount,
			&bet.AutoCashout,
			&bet.Status,
			&bet.CashoutMultiplier,
			&bet.Payout,
			&bet.CreatedAt,
			&bet.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, &bet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}

	return bets, nil
}
