package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

func newTransaction(created time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:             uuid.New(),
		Status:         domain.StatusInvoiceGenerated,
		RecipientPhone: "237670000000",
		Amount:         decimal.NewFromInt(1000),
		Currency:       "XAF",
		AmountCrypto:   decimal.RequireFromString("0.0000021"),
		InvoiceID:      "sim-1",
		InvoiceString:  "lnbc...",
		InvoiceSource:  domain.InvoiceSourceSimulated,
		ExpiresAt:      created.Add(10 * time.Minute),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	tx := newTransaction(time.Now())

	require.NoError(t, repo.Create(ctx, tx))

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	// Mutating the returned copy must not leak into the store
	got.Status = domain.StatusFailed
	again, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvoiceGenerated, again.Status)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, domain.IsPersistence(repo.Create(ctx, tx)))
}

func TestTransactionRepository_UpdateStatus_ConditionalWrite(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	tx := newTransaction(time.Now())
	require.NoError(t, repo.Create(ctx, tx))

	paidAt := time.Now()
	updated, err := repo.UpdateStatus(ctx, tx.ID, domain.StatusInvoiceGenerated, domain.StatusUpdate{Status: domain.StatusPaid, PaidAt: &paidAt})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	assert.NotNil(t, updated.PaidAt)

	_, err = repo.UpdateStatus(ctx, tx.ID, domain.StatusInvoiceGenerated, domain.StatusUpdate{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	_, err = repo.UpdateStatus(ctx, tx.ID, domain.StatusPaid, domain.StatusUpdate{Status: domain.StatusInvoiceGenerated})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = repo.UpdateStatus(ctx, uuid.New(), domain.StatusPaid, domain.StatusUpdate{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionRepository_UpdateStatus_SingleWinner(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	tx := newTransaction(time.Now())
	tx.Status = domain.StatusPaid
	require.NoError(t, repo.Create(ctx, tx))

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.UpdateStatus(ctx, tx.ID, domain.StatusPaid, domain.StatusUpdate{Status: domain.StatusSendingMobileMoney}); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestTransactionRepository_ListByStatus(t *testing.T) {
	repo := NewTransactionRepository()
	ctx := context.Background()
	base := time.Now()

	late := newTransaction(base.Add(time.Minute))
	early := newTransaction(base)
	done := newTransaction(base.Add(-time.Minute))
	done.Status = domain.StatusCompleted
	for _, tx := range []*domain.Transaction{late, early, done} {
		require.NoError(t, repo.Create(ctx, tx))
	}

	txs, err := repo.ListByStatus(ctx, domain.InFlightStatuses...)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, early.ID, txs[0].ID)
	assert.Equal(t, late.ID, txs[1].ID)
	assert.Equal(t, 3, repo.Len())
}
