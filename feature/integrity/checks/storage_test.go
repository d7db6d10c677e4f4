package checks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/storage/mocks"
)

func TestCheckStorage(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)

	t.Run("Bucket Missing", func(t *testing.T) {
		archive, client := mocks.NewArchive("receipts")
		client.On("BucketExists", mock.Anything, "receipts").Return(false, nil)

		_, err := CheckStorage(context.Background(), archive, &fakeReader{}, now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("Orphans And Missing Sources", func(t *testing.T) {
		archive, client := mocks.NewArchive("receipts")
		client.On("BucketExists", mock.Anything, "receipts").Return(true, nil)
		client.Archived("receipts",
			minio.ObjectInfo{Key: "uploads/a/jan.xlsx", LastModified: old},
			minio.ObjectInfo{Key: "uploads/b/feb.xlsx", LastModified: old},
			minio.ObjectInfo{Key: "uploads/c/mar.xlsx", LastModified: now.Add(-time.Minute)},
		)
		reader := &fakeReader{batches: []ledger.Batch{
			{ID: "b1", SourceObject: "uploads/a/jan.xlsx"},
			{ID: "b2", SourceObject: "uploads/z/gone.xlsx"},
			{ID: "b3"},
		}}

		report, err := CheckStorage(context.Background(), archive, reader, now)
		require.NoError(t, err)
		assert.Equal(t, "receipts", report.Bucket)
		assert.Equal(t, 3, report.Objects)
		assert.Equal(t, []string{"uploads/b/feb.xlsx"}, report.Orphans, "recent uploads are not orphans yet")
		assert.Equal(t, []string{"b2"}, report.MissingSources)
		assert.False(t, report.Matched())
	})

	t.Run("Consistent", func(t *testing.T) {
		archive, client := mocks.NewArchive("receipts")
		client.On("BucketExists", mock.Anything, "receipts").Return(true, nil)
		client.Archived("receipts", minio.ObjectInfo{Key: "uploads/a/jan.xlsx", LastModified: old})
		reader := &fakeReader{batches: []ledger.Batch{{ID: "b1", SourceObject: "uploads/a/jan.xlsx"}}}

		report, err := CheckStorage(context.Background(), archive, reader, now)
		require.NoError(t, err)
		assert.True(t, report.Matched())
	})
}

func TestFixStorage(t *testing.T) {
	t.Run("Removes Orphans", func(t *testing.T) {
		archive, client := mocks.NewArchive("receipts")
		client.Removing("receipts", nil)

		require.NoError(t, FixStorage(context.Background(), archive, zap.NewNop(), []string{"uploads/b/feb.xlsx"}))
		assert.Equal(t, []string{"uploads/b/feb.xlsx"}, client.Removed())

		require.NoError(t, FixStorage(context.Background(), archive, zap.NewNop(), nil))
		client.AssertNumberOfCalls(t, "RemoveObjects", 1)
	})

	t.Run("Removal Refused", func(t *testing.T) {
		archive, client := mocks.NewArchive("receipts")
		client.Removing("receipts", map[string]error{"uploads/b/feb.xlsx": errors.New("access denied")})

		err := FixStorage(context.Background(), archive, zap.NewNop(), []string{"uploads/a/jan.xlsx", "uploads/b/feb.xlsx"})
		assert.ErrorContains(t, err, "uploads/b/feb.xlsx")
		assert.Equal(t, []string{"uploads/a/jan.xlsx"}, client.Removed())
	})
}
