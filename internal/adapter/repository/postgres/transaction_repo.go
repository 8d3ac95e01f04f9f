package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const transactionColumns = `id, status, recipient_phone, network_id, amount, currency, amount_crypto,
		invoice_id, invoice_string, invoice_source, expires_at, paid_at, mobile_money_reference,
		created_at, updated_at`

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var networkID sql.NullInt64
	var amountStr, cryptoStr string
	var paidAt sql.NullTime
	var reference sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.Status,
		&tx.RecipientPhone,
		&networkID,
		&amountStr,
		&tx.Currency,
		&cryptoStr,
		&tx.InvoiceID,
		&tx.InvoiceString,
		&tx.InvoiceSource,
		&tx.ExpiresAt,
		&paidAt,
		&reference,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if networkID.Valid {
		tx.NetworkID = int(networkID.Int64)
	}

	// Parse amount and amount_crypto (NUMERIC)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	tx.Amount = amount

	crypto, err := decimal.NewFromString(cryptoStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount_crypto: %w", err)
	}
	tx.AmountCrypto = crypto

	if paidAt.Valid {
		t := paidAt.Time
		tx.PaidAt = &t
	}
	if reference.Valid {
		tx.MobileMoneyReference = reference.String
	}

	return &tx, nil
}

// GetByID retrieves a transaction by its ID
func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "get transaction by ID", Err: err}
	}

	return tx, nil
}

// Create inserts a freshly issued transaction
func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return domain.NewValidationError("transaction", err.Error())
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		string(tx.Status),
		tx.RecipientPhone,
		nullableInt(tx.NetworkID),
		tx.Amount.String(),
		tx.Currency,
		tx.AmountCrypto.String(),
		tx.InvoiceID,
		tx.InvoiceString,
		string(tx.InvoiceSource),
		tx.ExpiresAt,
		nullableTime(tx.PaidAt),
		nullableString(tx.MobileMoneyReference),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return &domain.PersistenceError{Op: "create transaction", Err: err}
	}

	return nil
}

// UpdateStatus performs the conditional write behind every transition.
// Logic:
// 1. UPDATE only when the row still holds the expected prior status
// 2. paid_at and mobile_money_reference are COALESCEd so they are written at most once
// 3. When no row matched, tell "gone" apart from "moved by someone else"
func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from domain.TransactionStatus, update domain.StatusUpdate) (*domain.Transaction, error) {
	if !from.CanTransitionTo(update.Status) {
		return nil, fmt.Errorf("%s -> %s: %w", from, update.Status, domain.ErrInvalidTransition)
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		UPDATE transactions
		SET status = $3,
			paid_at = COALESCE(paid_at, $4),
			mobile_money_reference = COALESCE(mobile_money_reference, $5),
			updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		id,
		string(from),
		string(update.Status),
		nullableTime(update.PaidAt),
		nullableString(update.MobileMoneyReference),
		updatedAt,
	))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.PersistenceError{Op: "update transaction status", Err: err}
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "read transaction status", Err: err}
	}

	return nil, fmt.Errorf("transaction %s expected %s, found %s: %w", id, from, current, domain.ErrStatusConflict)
}

// ListByStatus returns the transactions in any of statuses, oldest first
func (r *transactionRepository) ListByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	if len(statuses) == 0 {
		return []*domain.Transaction{}, nil
	}

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ANY($1)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list transactions by status", Err: err}
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scan transaction", Err: err}
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "iterate transactions", Err: err}
	}

	return txs, nil
}

// Ping verifies the database is reachable
func (r *transactionRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "ping database", Err: err}
	}
	return nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
