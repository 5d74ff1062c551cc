package repository

import (
	"context"
	"fmt"

	"aviator/database"
	"aviator/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

const userColumns = `id, phone_number, username, balance, bonus_balance, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.Username,
		&user.Balance,
		&user.BonusBalance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by their ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return user, nil
}

// GetByPhone retrieves a user by their phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE phone_number = $1
	`

	user, err := scanUser(r.q.QueryRow(ctx, query, phoneNumber))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by phone %s: %w", phoneNumber, err)
	}

	return user, nil
}

// GetForUpdate retrieves a user and takes a row lock for the remainder of
// the enclosing transaction. Every balance mutation goes through this so
// concurrent ledger entries for the same user serialize at the database.
func (r *UserRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
		FOR UPDATE
	`

	user, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", userID, err)
	}

	return user, nil
}

// Create creates a new user with the given starting balances
func (r *UserRepository) Create(ctx context.Context, phoneNumber, username string, balance, bonusBalance decimal.Decimal) (*models.User, error) {
	query := `
		INSERT INTO users (phone_number, username, balance, bonus_balance)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns + `
	`

	user, err := scanUser(r.q.QueryRow(ctx, query, phoneNumber, username, balance, bonusBalance))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.IntegrityError{Reason: fmt.Sprintf("user with phone %s already exists", phoneNumber), Err: err}
		}
		return nil, fmt.Errorf("failed to create user with phone %s: %w", phoneNumber, err)
	}

	return user, nil
}

// UpdateBalances sets both balances of a user atomically
func (r *UserRepository) UpdateBalances(ctx context.Context, userID int64, balance, bonusBalance decimal.Decimal) error {
	query := `
		UPDATE users
		SET balance = $1, bonus_balance = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.q.Exec(ctx, query, balance, bonusBalance, userID)
	if err != nil {
		return fmt.Errorf("failed to update balances for user %d: %w", userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}

	return nil
}
