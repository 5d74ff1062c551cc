package repository

import (
	"context"
	"fmt"
	"time"

	"aviator/database"
	"aviator/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepository implements the TransactionRepository interface
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Create inserts a new ledger entry and fills in its generated fields.
// References are unique, so replaying the same operation surfaces as an
// IntegrityError instead of a double-applied entry.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, type, amount, balance_before, balance_after,
			reference, status, description, checkout_id, receipt,
			phone_number, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Reference,
		txn.Status,
		txn.Description,
		txn.CheckoutID,
		txn.Receipt,
		txn.PhoneNumber,
		txn.CompletedAt,
	).Scan(&txn.ID, &txn.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return models.IntegrityError{Reason: fmt.Sprintf("reference %s already used", txn.Reference), Err: err}
		}
		return fmt.Errorf("failed to create transaction %s: %w", txn.Reference, err)
	}

	return nil
}

// GetByReference retrieves a transaction by its reference
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference, status, description, checkout_id, receipt,
		       phone_number, created_at, completed_at
		FROM transactions
		WHERE reference = $1
	`

	var txn models.Transaction
	err := r.q.QueryRow(ctx, query, reference).Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Type,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&txn.Reference,
		&txn.Status,
		&txn.Description,
		&txn.CheckoutID,
		&txn.Receipt,
		&txn.PhoneNumber,
		&txn.CreatedAt,
		&txn.CompletedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", reference, err)
	}

	return &txn, nil
}

// GetByCheckoutIDForUpdate retrieves a payment by its provider checkout ID
// and takes a row lock. Provider callbacks arrive at-least-once, so the
// handler locks the row before deciding whether the callback was already
// processed.
func (r *TransactionRepository) GetByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*models.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference, status, description, checkout_id, receipt,
		       phone_number, created_at, completed_at
		FROM transactions
		WHERE checkout_id = $1
		FOR UPDATE
	`

	var txn models.Transaction
	err := r.q.QueryRow(ctx, query, checkoutID).Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Type,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&txn.Reference,
		&txn.Status,
		&txn.Description,
		&txn.CheckoutID,
		&txn.Receipt,
		&txn.PhoneNumber,
		&txn.CreatedAt,
		&txn.CompletedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by checkout %s: %w", checkoutID, err)
	}

	return &txn, nil
}

// Complete moves a pending transaction to completed with its final
// balances and provider receipt
func (r *TransactionRepository) Complete(ctx context.Context, transactionID int64, receipt *string, balanceBefore, balanceAfter decimal.Decimal) error {
	query := `
		UPDATE transactions
		SET status = 'completed', receipt = $1, balance_before = $2,
		    balance_after = $3, completed_at = NOW()
		WHERE id = $4 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, receipt, balanceBefore, balanceAfter, transactionID)
	if err != nil {
		return fmt.Errorf("failed to complete transaction %d: %w", transactionID, err)
	}

	if result.RowsAffected() == 0 {
		return models.StateConflictError{Reason: fmt.Sprintf("transaction %d is not pending", transactionID)}
	}

	return nil
}

// MarkFailed moves a pending transaction to failed
func (r *TransactionRepository) MarkFailed(ctx context.Context, transactionID int64, reason string) error {
	query := `
		UPDATE transactions
		SET status = 'failed', description = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, reason, transactionID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %d failed: %w", transactionID, err)
	}

	if result.RowsAffected() == 0 {
		return models.StateConflictError{Reason: fmt.Sprintf("transaction %d is not pending", transactionID)}
	}

	return nil
}

// Cancel moves a pending transaction to cancelled. Used when a payment
// expires without a provider verdict, as opposed to an explicit failure.
func (r *TransactionRepository) Cancel(ctx context.Context, transactionID int64, reason string) error {
	query := `
		UPDATE transactions
		SET status = 'cancelled', description = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, reason, transactionID)
	if err != nil {
		return fmt.Errorf("failed to cancel transaction %d: %w", transactionID, err)
	}

	if result.RowsAffected() == 0 {
		return models.StateConflictError{Reason: fmt.Sprintf("transaction %d is not pending", transactionID)}
	}

	return nil
}

// ListByUser returns a user's transactions, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference, status, description, checkout_id, receipt,
		       phone_number, created_at, completed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.BalanceBefore,
			&txn.BalanceAfter,
			&txn.Reference,
			&txn.Status,
			&txn.Description,
			&txn.CheckoutID,
			&txn.Receipt,
			&txn.PhoneNumber,
			&txn.CreatedAt,
			&txn.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}

// ListStalePending returns pending payments created before the cutoff,
// oldest first. Game ledger entries are never pending so only deposits
// and withdrawals show up here.
func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, balance_before, balance_after,
		       reference, status, description, checkout_id, receipt,
		       phone_number, created_at, completed_at
		FROM transactions
		WHERE status = 'pending'
		  AND type IN ('deposit', 'withdrawal')
		  AND created_at < $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.BalanceBefore,
			&txn.BalanceAfter,
			&txn.Reference,
			&txn.Status,
			&txn.Description,
			&txn.CheckoutID,
			&txn.Receipt,
			&txn.PhoneNumber,
			&txn.CreatedAt,
			&txn.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txns, nil
}
