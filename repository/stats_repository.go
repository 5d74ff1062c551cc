package repository

import (
	"context"
	"fmt"

	"aviator/database"
	"aviator/models"
	"github.com/jackc/pgx/v5"
)

// StatsRepository implements the StatsRepository interface
type StatsRepository struct {
	q queryable
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *database.DB) *StatsRepository {
	return &StatsRepository{q: db.Pool}
}

// newStatsRepositoryWithTx creates a new stats repository with a transaction
func newStatsRepositoryWithTx(tx queryable) *StatsRepository {
	return &StatsRepository{q: tx}
}

// GetByUser retrieves a user's statistics row
func (r *StatsRepository) GetByUser(ctx context.Context, userID int64) (*models.UserStatistics, error) {
	query := `
		SELECT user_id, total_bets, total_wins, total_wagered, total_won,
		       biggest_win, biggest_multiplier, win_rate, updated_at
		FROM user_statistics
		WHERE user_id = $1
	`

	var stats models.UserStatistics
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.TotalBets,
		&stats.TotalWins,
		&stats.TotalWagered,
		&stats.TotalWon,
		&stats.BiggestWin,
		&stats.BiggestMultiplier,
		&stats.WinRate,
		&stats.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics for user %d: %w", userID, err)
	}

	return &stats, nil
}

// GetForUpdate retrieves a user's statistics row with a row lock, so
// concurrent settlements serialize their read-modify-write cycles
func (r *StatsRepository) GetForUpdate(ctx context.Context, userID int64) (*models.UserStatistics, error) {
	query := `
		SELECT user_id, total_bets, total_wins, total_wagered, total_won,
		       biggest_win, biggest_multiplier, win_rate, updated_at
		FROM user_statistics
		WHERE user_id = $1
		FOR UPDATE
	`

	var stats models.UserStatistics
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.TotalBets,
		&stats.TotalWins,
		&stats.TotalWagered,
		&stats.TotalWon,
		&stats.BiggestWin,
		&stats.BiggestMultiplier,
		&stats.WinRate,
		&stats.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock statistics for user %d: %w", userID, err)
	}

	return &stats, nil
}

// Upsert writes a user's statistics row, inserting it on first use
func (r *StatsRepository) Upsert(ctx context.Context, stats *models.UserStatistics) error {
	query := `
		INSERT INTO user_statistics (
			user_id, total_bets, total_wins, total_wagered, total_won,
			biggest_win, biggest_multiplier, win_rate, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_bets = EXCLUDED.total_bets,
			total_wins = EXCLUDED.total_wins,
			total_wagered = EXCLUDED.total_wagered,
			total_won = EXCLUDED.total_won,
			biggest_win = EXCLUDED.biggest_win,
			biggest_multiplier = EXCLUDED.biggest_multiplier,
			win_rate = EXCLUDED.win_rate,
			updated_at = NOW()
	`

	_, err := r.q.Exec(ctx, query,
		stats.UserID,
		stats.TotalBets,
		stats.TotalWins,
		stats.TotalWagered,
		stats.TotalWon,
		stats.BiggestWin,
		stats.BiggestMultiplier,
		stats.WinRate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert statistics for user %d: %w", stats.UserID, err)
	}

	return nil
}

// TopByTotalWon returns the leaderboard ordered by total winnings
func (r *StatsRepository) TopByTotalWon(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT s.user_id, u.username, s.total_won, s.total_bets, s.win_rate
		FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.total_bets > 0
		ORDER BY s.total_won DESC, s.user_id ASC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	rank := 1
	for rows.Next() {
		var entry models.LeaderboardEntry
		err := rows.Scan(
			&entry.UserID,
			&entry.Username,
			&entry.TotalWon,
			&entry.TotalBets,
			&entry.WinRate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entry.Rank = rank
		rank++
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}

	return entries, nil
}
