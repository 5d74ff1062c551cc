package repository

import (
	"context"
	"fmt"

	"aviator/database"
	"aviator/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RoundRepository implements the RoundRepository interface
type RoundRepository struct {
	q queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) *RoundRepository {
	return &RoundRepository{q: db.Pool}
}

// newRoundRepositoryWithTx creates a new round repository with a transaction
func newRoundRepositoryWithTx(tx queryable) *RoundRepository {
	return &RoundRepository{q: tx}
}

// Create inserts a new round and fills in its generated fields
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	query := `
		INSERT INTO rounds (
			round_number, status, multiplier, crash_point,
			server_seed, client_seed, nonce, start_time, end_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		round.RoundNumber,
		round.Status,
		round.Multiplier,
		round.CrashPoint,
		round.ServerSeed,
		round.ClientSeed,
		round.Nonce,
		round.StartTime,
		round.EndTime,
	).Scan(&round.ID, &round.CreatedAt, &round.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create round %d: %w", round.RoundNumber, err)
	}

	return nil
}

// Update persists the mutable fields of a round
func (r *RoundRepository) Update(ctx context.Context, round *models.Round) error {
	query := `
		UPDATE rounds
		SET status = $1, multiplier = $2, crash_point = $3,
		    start_time = $4, end_time = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.q.Exec(ctx, query,
		round.Status,
		round.Multiplier,
		round.CrashPoint,
		round.StartTime,
		round.EndTime,
		round.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update round %d: %w", round.ID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("round %d not found", round.ID)
	}

	return nil
}

// UpdateLiveMultiplier records the current multiplier of a flying round.
// A tick that arrives after the round crashed matches no row and is
// dropped, so the final multiplier is never overwritten.
func (r *RoundRepository) UpdateLiveMultiplier(ctx context.Context, roundNumber int64, multiplier decimal.Decimal) error {
	query := `
		UPDATE rounds
		SET multiplier = $1, updated_at = NOW()
		WHERE round_number = $2 AND status = 'flying'
	`

	if _, err := r.q.Exec(ctx, query, multiplier, roundNumber); err != nil {
		return fmt.Errorf("failed to update live multiplier of round %d: %w", roundNumber, err)
	}

	return nil
}

// NextRoundNumber returns the round number the next round should use
func (r *RoundRepository) NextRoundNumber(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(round_number), 0) + 1 FROM rounds`

	var next int64
	if err := r.q.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next round number: %w", err)
	}

	return next, nil
}

// GetByNumber retrieves a round by its round number
func (r *RoundRepository) GetByNumber(ctx context.Context, roundNumber int64) (*models.Round, error) {
	query := `
		SELECT id, round_number, status, multiplier, crash_point,
		       server_seed, client_seed, nonce, start_time, end_time,
		       created_at, updated_at
		FROM rounds
		WHERE round_number = $1
	`

	var round models.Round
	err := r.q.QueryRow(ctx, query, roundNumber).Scan(
		&round.ID,
		&round.RoundNumber,
		&round.Status,
		&round.Multiplier,
		&round.CrashPoint,
		&round.ServerSeed,
		&round.ClientSeed,
		&round.Nonce,
		&round.StartTime,
		&round.EndTime,
		&round.CreatedAt,
		&round.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round %d: %w", roundNumber, err)
	}

	return &round, nil
}

// ListRecentCrashed returns the most recently finished rounds, newest first
func (r *RoundRepository) ListRecentCrashed(ctx context.Context, limit int) ([]*models.Round, error) {
	query := `
		SELECT id, round_number, status, multiplier, crash_point,
		       server_seed, client_seed, nonce, start_time, end_time,
		       created_at, updated_at
		FROM rounds
		WHERE status = 'crashed'
		ORDER BY round_number DESC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		var round models.Round
		err := rows.Scan(
			&round.ID,
			&round.RoundNumber,
			&round.Status,
			&round.Multiplier,
			&round.CrashPoint,
			&round.ServerSeed,
			&round.ClientSeed,
			&round.Nonce,
			&round.StartTime,
			&round.EndTime,
			&round.CreatedAt,
			&round.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, &round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}

	return rounds, nil
}

// FindUnresolved returns rounds left in a non-terminal status, oldest first.
// Used at startup to settle rounds interrupted by a crash or restart.
func (r *RoundRepository) FindUnresolved(ctx context.Context) ([]*models.Round, error) {
	query := `
		SELECT id, round_number, status, multiplier, crash_point,
		       server_seed, client_seed, nonce, start_time, end_time,
		       created_at, updated_at
		FROM rounds
		WHERE status IN ('waiting', 'flying')
		ORDER BY round_number ASC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find unresolved rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		var round models.Round
		err := rows.Scan(
			&round.ID,
			&round.RoundNumber,
			&round.Status,
			&round.Multiplier,
			&round.CrashPoint,
			&round.ServerSeed,
			&round.ClientSeed,
			&round.Nonce,
			&round.StartTime,
			&round.EndTime,
			&round.CreatedAt,
			&round.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, &round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}

	return rounds, nil
}
