package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/domain"
)

func TestPostgresPayments_CreatePayment_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresPaymentsRepository(db)

	mock.ExpectExec(`INSERT INTO payments`).
		WillReturnError(&pq.Error{Code: "23505"})

	err = repo.CreatePayment(context.Background(), &domain.Payment{
		PaymentID: "p1", TenantID: "t1", BranchID: "b1", OrderID: "o1",
		Method: domain.MethodCash, AmountDue: decimal.RequireFromString("525"),
		AmountReceived: decimal.RequireFromString("600"), Change: decimal.RequireFromString("75"),
		Source: domain.SourceManual, ProcessedBy: "u1", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPayments_GetPaymentByOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresPaymentsRepository(db)
	scope := domain.Scope{TenantID: "t1", BranchID: "b1"}

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM payments`).
		WithArgs("t1", "b1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{
			"payment_id", "tenant_id", "branch_id", "order_id", "method", "transaction_id",
			"amount_due", "amount_received", "change_amount", "source", "processed_by", "created_at",
		}).AddRow("p1", "t1", "b1", "o1", "upi", "txn-1", "525.00", "525.00", "0.00", "manual", "u1", now))

	p, err := repo.GetPaymentByOrder(context.Background(), scope, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodUPI, p.Method)
	assert.Equal(t, "txn-1", p.TransactionID)
	assert.True(t, p.AmountDue.Equal(decimal.RequireFromString("525")))

	mock.ExpectQuery(`FROM payments`).
		WithArgs("t1", "b1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"payment_id"}))
	_, err = repo.GetPaymentByOrder(context.Background(), scope, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentAudits_ListAudits_DecodesMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresPaymentAuditsRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM payment_audits`).
		WithArgs("t1", "b1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{
			"audit_id", "tenant_id", "branch_id", "order_id", "action", "success",
			"actor_id", "actor_role", "ip_address", "user_agent", "error", "metadata", "created_at",
		}).
			AddRow("a1", "t1", "b1", "o1", "initiated", true, "u1", "cashier", "10.0.0.1", "ua", "", nil, now).
			AddRow("a2", "t1", "b1", "o1", "processed", true, "u1", "cashier", "10.0.0.1", "ua", "", []byte(`{"method":"cash"}`), now))

	audits, err := repo.ListAudits(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, "o1")
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, domain.AuditInitiated, audits[0].Action)
	assert.Nil(t, audits[0].Metadata)
	assert.Equal(t, "cash", audits[1].Metadata["method"])
	require.NoError(t, mock.ExpectationsWereMet())
}
