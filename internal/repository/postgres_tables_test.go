package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/domain"
)

var tableRowColumns = []string{
	"table_id", "tenant_id", "branch_id", "number", "capacity", "status",
	"current_order_id", "reserved_by", "reserved_at", "created_at", "updated_at",
}

func TestPostgresTables_CompareAndSetTable_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTablesRepository(db)

	now := time.Now().UTC()
	orderID := "o1"
	mock.ExpectQuery(`UPDATE restaurant_tables SET`).
		WithArgs("t1", "b1", "tb1", sqlmock.AnyArg(), domain.TableOccupied, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(tableRowColumns).
			AddRow("tb1", "t1", "b1", "T1", 4, "occupied", orderID, nil, nil, now, now))

	tbl, err := repo.CompareAndSetTable(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, "tb1",
		domain.OccupiableStatuses, domain.TableState{Status: domain.TableOccupied, CurrentOrderID: &orderID})
	require.NoError(t, err)
	assert.Equal(t, domain.TableOccupied, tbl.Status)
	require.NotNil(t, tbl.CurrentOrderID)
	assert.Equal(t, orderID, *tbl.CurrentOrderID)
	assert.Nil(t, tbl.ReservedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTables_CompareAndSetTable_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTablesRepository(db)

	mock.ExpectQuery(`UPDATE restaurant_tables SET`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t1", "b1", "tb1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err = repo.CompareAndSetTable(context.Background(), domain.Scope{TenantID: "t1", BranchID: "b1"}, "tb1",
		domain.OccupiableStatuses, domain.TableState{Status: domain.TableOccupied})
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTables_CreateTable_DuplicateNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTablesRepository(db)

	mock.ExpectExec(`INSERT INTO restaurant_tables`).
		WillReturnError(&pq.Error{Code: "23505"})

	err = repo.CreateTable(context.Background(), &domain.Table{TableID: "tb1", TenantID: "t1", BranchID: "b1", Number: "T1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTables_ReleaseExpiredReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresTablesRepository(db)

	cutoff := time.Now().Add(-15 * time.Minute)
	mock.ExpectExec(`UPDATE restaurant_tables SET`).
		WithArgs("t1", "b1", "tb1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := repo.ReleaseExpiredReservation(context.Background(),
		&domain.Table{TableID: "tb1", TenantID: "t1", BranchID: "b1"}, cutoff)
	require.NoError(t, err)
	assert.False(t, released)
	require.NoError(t, mock.ExpectationsWereMet())
}
