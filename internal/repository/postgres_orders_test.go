package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/domain"
)

func setupMockOrdersDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresOrdersRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresOrdersRepository(db)
}

var orderRowColumns = []string{
	"order_id", "tenant_id", "branch_id", "token", "order_number", "order_type", "table_id",
	"customer_name", "customer_phone", "items", "status", "payment_status", "kot_status",
	"subtotal", "tax", "discount", "final_amount",
	"prep_started_at", "ready_at", "completed_at", "paid_at",
	"cancelled_at", "cancelled_by", "cancel_reason",
	"created_by", "created_at", "updated_at", "version",
}

func TestPostgresOrders_GetOrder_Success(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	scope := domain.Scope{TenantID: "t1", BranchID: "b1"}
	orderID := uuid.New().String()
	tableID := uuid.New().String()
	now := time.Now().UTC()

	items := `[{"item_id":"i1","name":"Tea","price":"10","quantity":2,"status":"PENDING","updated_at":"2024-01-01T00:00:00Z"}]`
	rows := sqlmock.NewRows(orderRowColumns).AddRow(
		orderID, "t1", "b1", int64(7), "ORD-000007", "dine_in", tableID,
		"Asha", "", []byte(items), "accepted", "pending", "open",
		"20.00", "1.00", "0.00", "21.00",
		nil, nil, nil, nil,
		nil, "", "",
		"u1", now, now, int64(3),
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs("t1", "b1", orderID).
		WillReturnRows(rows)

	o, err := repo.GetOrder(context.Background(), scope, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, o.OrderID)
	assert.Equal(t, domain.OrderAccepted, o.Status)
	require.NotNil(t, o.TableID)
	assert.Equal(t, tableID, *o.TableID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Tea", o.Items[0].Name)
	assert.True(t, o.Items[0].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.Final.Equal(decimal.RequireFromString("21")))
	assert.Equal(t, int64(3), o.Version)
	assert.Nil(t, o.PaidAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_GetOrder_NotFound(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("t1", "b1", "missing").
		WillReturnError(sql.ErrNoRows)

	o, err := repo.GetOrder(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, o)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_CreateOrder_DuplicateToken(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnError(&pq.Error{Code: "23505"})

	o := &domain.Order{OrderID: uuid.New().String(), TenantID: "t1", BranchID: "b1", Token: 1}
	err := repo.CreateOrder(context.Background(), o)
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_UpdateOrder_BumpsVersion(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	o := &domain.Order{OrderID: uuid.New().String(), TenantID: "t1", BranchID: "b1", Version: 4}
	mock.ExpectExec(`UPDATE orders SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateOrder(context.Background(), o))
	assert.Equal(t, int64(5), o.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_UpdateOrder_StaleVersion(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	o := &domain.Order{OrderID: uuid.New().String(), TenantID: "t1", BranchID: "b1", Version: 4}
	mock.ExpectExec(`UPDATE orders SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t1", "b1", o.OrderID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.UpdateOrder(context.Background(), o)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(4), o.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_CompareAndSetPaymentStatus_NotFound(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE orders SET payment_status`).
		WithArgs("t1", "b1", "o1", domain.PaymentPending, domain.PaymentInProcess).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.CompareAndSetPaymentStatus(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"},
		"o1", domain.PaymentPending, domain.PaymentInProcess)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_SalesByDay(t *testing.T) {
	db, mock, repo := setupMockOrdersDB(t)
	defer db.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	mock.ExpectQuery(`SELECT to_char`).
		WithArgs("t1", "b1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count", "sum"}).
			AddRow("2024-01-01", 3, "315.00").
			AddRow("2024-01-02", 1, "42.50"))

	out, err := repo.SalesByDay(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, from, to)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2024-01-01", out[0].Day)
	assert.Equal(t, 3, out[0].Orders)
	assert.True(t, out[0].Revenue.Equal(decimal.RequireFromString("315")))
	require.NoError(t, mock.ExpectationsWereMet())
}
