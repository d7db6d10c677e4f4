package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"receipt-ledger/core/ledger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestTx_FindEntityLocksRow(t *testing.T) {
	db, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `receipts` WHERE receipt_number = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "receipt_number", "status", "current_version_id", "current_number"}).
			AddRow("e1", "REC001", "active", "v3", 3))

	tx, err := New(db).Begin(ctx)
	require.NoError(t, err)
	e, err := tx.FindEntity(ctx, "REC001")
	require.NoError(t, err)
	assert.Equal(t, 3, e.CurrentNumber)
	require.NotNil(t, e.CurrentVersionID)
	assert.Equal(t, "v3", *e.CurrentVersionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("Duplicate Receipt", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `receipts`").
			WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'REC001'"})

		tx, err := New(db).Begin(ctx)
		require.NoError(t, err)
		_, err = tx.CreateEntity(ctx, "REC001")
		assert.ErrorIs(t, err, ledger.ErrDuplicateEntity)
	})

	t.Run("Lock Wait Timeout", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `receipts`").
			WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})

		tx, err := New(db).Begin(ctx)
		require.NoError(t, err)
		_, err = tx.FindEntity(ctx, "REC001")
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
		assert.True(t, ledger.IsRetryable(err))
	})

	t.Run("Deadlock", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `receipts`").
			WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"})

		tx, _ := New(db).Begin(ctx)
		_, err := tx.FindEntity(ctx, "REC001")
		assert.ErrorIs(t, err, ledger.ErrTxAborted)
		assert.NotErrorIs(t, err, ledger.ErrConcurrentModification)
		assert.False(t, ledger.IsRetryable(err), "savepoints died with the transaction")
	})

	t.Run("Deadlock On Version Insert", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `receipts`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `receipt_versions`").
			WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"})

		tx, _ := New(db).Begin(ctx)
		e := &ledger.Entity{ID: "e1", Identifier: "REC001", CurrentNumber: 1}
		_, err := tx.AppendVersion(ctx, e, ledger.Fields{}, ledger.Provenance{Origin: ledger.OriginBatchUpload})
		assert.ErrorIs(t, err, ledger.ErrTxAborted)
	})

	t.Run("Data Too Long", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `receipts`").
			WillReturnError(&mysqldriver.MySQLError{Number: 1406, Message: "Data too long for column 'receipt_number'"})

		tx, _ := New(db).Begin(ctx)
		_, err := tx.CreateEntity(ctx, "REC001")
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	})

	t.Run("Connection Lost", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `receipts`").WillReturnError(errors.New("connection reset by peer"))

		tx, _ := New(db).Begin(ctx)
		_, err := tx.FindEntity(ctx, "REC001")
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
		assert.False(t, ledger.IsRetryable(err))
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `receipts`").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		tx, _ := New(db).Begin(ctx)
		_, err := tx.FindEntity(ctx, "REC404")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("Begin Fails", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		_, err := New(db).Begin(ctx)
		assert.ErrorIs(t, err, ledger.ErrStorageUnavailable)
	})
}

func TestTx_AppendVersionCounterMoved(t *testing.T) {
	db, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `receipts` SET .* WHERE id = \\? AND current_number = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := New(db).Begin(ctx)
	require.NoError(t, err)

	e := &ledger.Entity{ID: "e1", Identifier: "REC001", CurrentNumber: 3}
	_, err = tx.AppendVersion(ctx, e, ledger.Fields{}, ledger.Provenance{Origin: ledger.OriginBatchUpload})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.Equal(t, 3, e.CurrentNumber, "entity untouched on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_AppendVersionDuplicateNumber(t *testing.T) {
	db, mock := setupMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `receipts`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `receipt_versions`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry for key 'idx_receipt_version'"})

	tx, _ := New(db).Begin(ctx)
	e := &ledger.Entity{ID: "e1", Identifier: "REC001", CurrentNumber: 3}
	_, err := tx.AppendVersion(ctx, e, ledger.Fields{}, ledger.Provenance{Origin: ledger.OriginBatchUpload})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", gorm.ErrRecordNotFound), ledger.ErrNotFound)

	err := classify("op", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ledger.ErrStorageUnavailable)
}
