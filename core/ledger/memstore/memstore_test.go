package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-ledger/core/ledger"
)

func sampleFields(name string) ledger.Fields {
	return ledger.Fields{
		StudentName: name,
		ClassName:   "5A",
		PaymentMode: ledger.PaymentCash,
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		TuitionFee:  decimal.RequireFromString("5000.00"),
	}
}

func manual(actor string) ledger.Provenance {
	return ledger.Provenance{Origin: ledger.OriginManualEdit, Actor: actor}
}

func TestStore_CommitPublishesAtomically(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	e, err := tx.CreateEntity(ctx, "REC001")
	require.NoError(t, err)
	v, err := tx.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, 1, e.CurrentNumber)
	require.NotNil(t, e.CurrentVersionID)
	assert.Equal(t, v.ID, *e.CurrentVersionID)

	// Not visible before commit
	_, err = s.GetEntity(ctx, "REC001")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, tx.Commit())

	got, err := s.GetEntity(ctx, "REC001")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusActive, got.Status)
	assert.Equal(t, 1, got.CurrentNumber)

	versions, err := s.ListVersions(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Anil", versions[0].StudentName)
}

func TestStore_RollbackDiscards(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	e, err := tx.CreateEntity(ctx, "REC001")
	require.NoError(t, err)
	_, err = tx.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = s.GetEntity(ctx, "REC001")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, tx.Commit(), ledger.ErrTxDone)

	// Lock was released
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx2.CreateEntity(ctx, "REC001")
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
}

func TestStore_DuplicateEntity(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	_, err := tx.CreateEntity(ctx, "REC001")
	require.NoError(t, err)
	_, err = tx.CreateEntity(ctx, "REC001")
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntity)
	require.NoError(t, tx.Commit())

	tx, _ = s.Begin(ctx)
	_, err = tx.CreateEntity(ctx, "REC001")
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntity)
	assert.True(t, ledger.IsRetryable(err))
	_ = tx.Rollback()
}

func TestStore_AppendVersionCompareAndSet(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	e, _ := tx.CreateEntity(ctx, "REC001")
	_, err := tx.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))
	require.NoError(t, err)

	stale := *e
	stale.CurrentNumber = 0
	_, err = tx.AppendVersion(ctx, &stale, sampleFields("Other"), manual("alice"))
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	v2, err := tx.AppendVersion(ctx, e, sampleFields("Anil Kumar"), manual("alice"))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Number)
	require.NoError(t, tx.Commit())

	versions, err := s.ListVersions(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Number)
	assert.Equal(t, 2, versions[1].Number)
}

func TestStore_SavepointRollback(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	first, _ := tx.CreateEntity(ctx, "REC001")
	_, err := tx.AppendVersion(ctx, first, sampleFields("Anil"), manual("alice"))
	require.NoError(t, err)

	require.NoError(t, tx.Savepoint(ctx, "rec_2"))
	second, _ := tx.CreateEntity(ctx, "REC002")
	_, err = tx.AppendVersion(ctx, second, sampleFields("Bina"), manual("alice"))
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo(ctx, "rec_2"))

	_, err = tx.FindEntity(ctx, "REC002")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	found, err := tx.FindEntity(ctx, "REC001")
	require.NoError(t, err)
	assert.Equal(t, 1, found.CurrentNumber)

	assert.Error(t, tx.RollbackTo(ctx, "missing"))
	require.NoError(t, tx.Commit())

	_, err = s.GetEntity(ctx, "REC002")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = s.GetEntity(ctx, "REC001")
	assert.NoError(t, err)
}

func TestStore_LockedReceiptConflicts(t *testing.T) {
	s := New(20 * time.Millisecond)
	ctx := context.Background()

	seed, _ := s.Begin(ctx)
	e, _ := seed.CreateEntity(ctx, "REC001")
	_, _ = seed.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))
	require.NoError(t, seed.Commit())

	holder, _ := s.Begin(ctx)
	_, err := holder.FindEntity(ctx, "REC001")
	require.NoError(t, err)

	other, _ := s.Begin(ctx)
	_, err = other.FindEntity(ctx, "REC001")
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	_ = other.Rollback()

	require.NoError(t, holder.Rollback())

	again, _ := s.Begin(ctx)
	_, err = again.FindEntity(ctx, "REC001")
	assert.NoError(t, err)
	_ = again.Rollback()
}

func TestStore_SetStatusKeepsVersions(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	e, _ := tx.CreateEntity(ctx, "REC001")
	_, _ = tx.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))
	require.NoError(t, tx.SetStatus(ctx, e, ledger.StatusVoided))
	assert.Error(t, tx.SetStatus(ctx, e, ledger.Status("archived")))
	require.NoError(t, tx.Commit())

	got, err := s.GetEntity(ctx, "REC001")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusVoided, got.Status)
	assert.Equal(t, 1, got.CurrentNumber)
}

func TestStore_AuditEntriesNeedVersion(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	e, _ := tx.CreateEntity(ctx, "REC001")
	v, _ := tx.AppendVersion(ctx, e, sampleFields("Anil"), manual("alice"))

	err := tx.AppendAuditEntries(ctx, []ledger.AuditEntry{{EntityID: e.ID, VersionID: "nope", Field: ledger.FieldStudentName}})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, tx.AppendAuditEntries(ctx, []ledger.AuditEntry{
		{EntityID: e.ID, VersionID: v.ID, VersionNumber: 1, Field: ledger.FieldStudentName, New: "Anil", Actor: "alice"},
	}))
	require.NoError(t, tx.Commit())

	entries, err := s.ListAuditEntries(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Nil(t, entries[0].Old)
}

func TestStore_Batches(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	for _, label := range []string{"jan.xlsx", "feb.xlsx", "mar.xlsx"} {
		tx, _ := s.Begin(ctx)
		b := &ledger.Batch{Label: label, Actor: "alice"}
		require.NoError(t, tx.CreateBatch(ctx, b))
		assert.Equal(t, ledger.BatchInProgress, b.Status)
		require.NoError(t, tx.Commit())

		tx, _ = s.Begin(ctx)
		b.Status = ledger.BatchCompleted
		b.Inserted = 2
		b.Failures = []ledger.Failure{{Identifier: "X", Reason: "bad"}}
		require.NoError(t, tx.FinishBatch(ctx, b))
		require.NoError(t, tx.Commit())
	}

	page, err := s.ListBatches(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "mar.xlsx", page.Items[0].Label)
	assert.Equal(t, "feb.xlsx", page.Items[1].Label)
	assert.Equal(t, ledger.BatchCompleted, page.Items[0].Status)
	assert.NotNil(t, page.Items[0].FinishedAt)

	page, err = s.ListBatches(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "jan.xlsx", page.Items[0].Label)

	got, err := s.GetBatch(ctx, page.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, got.Failures, 1)

	tx, _ := s.Begin(ctx)
	assert.ErrorIs(t, tx.FinishBatch(ctx, &ledger.Batch{ID: "missing"}), ledger.ErrNotFound)
	_ = tx.Rollback()
}

func TestStore_ListEntitiesFilters(t *testing.T) {
	s := New(50 * time.Millisecond)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	for i, name := range []string{"Anil Kumar", "Bina Shah", "Anita Rao"} {
		e, _ := tx.CreateEntity(ctx, []string{"REC001", "REC002", "REC003"}[i])
		f := sampleFields(name)
		if i == 1 {
			f.PaymentMode = ledger.PaymentUPI
			f.ClassName = "6B"
		}
		_, err := tx.AppendVersion(ctx, e, f, manual("alice"))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	page, err := s.ListEntities(ctx, ledger.Filter{Query: "ani"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.ListEntities(ctx, ledger.Filter{Query: "rec002"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = s.ListEntities(ctx, ledger.Filter{PaymentMode: ledger.PaymentUPI, ClassName: "6b"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Bina Shah", page.Items[0].Current.StudentName)

	after := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	page, err = s.ListEntities(ctx, ledger.Filter{DateFrom: &after})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)

	page, err = s.ListEntities(ctx, ledger.Filter{PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.TotalPages())
}
