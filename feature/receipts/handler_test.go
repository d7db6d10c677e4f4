package receipts_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/storage"
	"receipt-ledger/core/storage/mocks"
)

func TestHandleUpload(t *testing.T) {
	app := newApp(newService(t, nil))
	data := workbook(t, receiptRow("REC001", "30000"), receiptRow("", "1"))

	var res reconcile.BatchResult
	status := do(t, app, uploadRequest(t, "march.xlsx", data, ""), &res)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	assert.NotEmpty(t, res.BatchID)

	var again reconcile.BatchResult
	do(t, app, uploadRequest(t, "march.xlsx", data, ""), &again)
	assert.Equal(t, 1, again.Unchanged, "re-upload is idempotent")

	var versions []ledger.Version
	status = do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/versions", nil), &versions)
	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, versions, 1)
	assert.Equal(t, "clerk", versions[0].Actor)
}

func TestHandleUpload_DryRun(t *testing.T) {
	app := newApp(newService(t, nil))
	data := workbook(t, receiptRow("REC001", "30000"))

	var res reconcile.BatchResult
	status := do(t, app, uploadRequest(t, "march.xlsx", data, "?dry_run=true"), &res)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Inserted)

	status = do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001", nil), nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandleUpload_Rejections(t *testing.T) {
	app := newApp(newService(t, nil))

	var body map[string]any
	status := do(t, app, uploadRequest(t, "march.csv", []byte("a,b"), ""), &body)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "xlsx")

	status = do(t, app, uploadRequest(t, "march.xlsx", []byte("garbage"), ""), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	missing := workbookWithHeader(t, []any{"Receipt No", "Student Name"}, []any{"REC001", "Asha"})
	body = nil
	status = do(t, app, uploadRequest(t, "march.xlsx", missing, ""), &body)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "missing required headers")

	req := httptest.NewRequest(http.MethodPost, "/receipts/upload", nil)
	status = do(t, app, req, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandleUpload_ArchiveFailure(t *testing.T) {
	archive, client := mocks.NewArchive("receipts")
	client.On("PutObject", mock.Anything, "receipts", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, assert.AnError)
	app := newApp(newService(t, archive))

	status := do(t, app, uploadRequest(t, "march.xlsx", workbook(t, receiptRow("REC001", "1")), ""), nil)
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestHandleAmend(t *testing.T) {
	app := newApp(newService(t, nil))
	do(t, app, uploadRequest(t, "march.xlsx", workbook(t, receiptRow("REC001", "30000")), ""), nil)

	var res reconcile.AmendResult
	status := do(t, app, jsonRequest(t, http.MethodPut, "/receipts/REC001", map[string]any{
		"fields": map[string]any{"tuition_fee": "32000", "class_name": "6A"},
		"reason": "promotion",
		"actor":  "principal",
	}), &res)
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, res.Version)
	assert.Equal(t, 2, res.Version.Number)
	assert.Equal(t, ledger.OriginManualEdit, res.Version.Origin)
	assert.Len(t, res.Changes, 2)

	var entries []ledger.AuditEntry
	do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/audit", nil), &entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "promotion", last.Reason)
	assert.Equal(t, "principal", last.Actor)

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"UnknownField", "/receipts/REC001", map[string]any{"fields": map[string]any{"receipt_number": "X"}}, fiber.StatusBadRequest},
		{"EmptyFields", "/receipts/REC001", map[string]any{"fields": map[string]any{}}, fiber.StatusBadRequest},
		{"BadValue", "/receipts/REC001", map[string]any{"fields": map[string]any{"annual_fee": "-5"}}, fiber.StatusBadRequest},
		{"UnknownReceipt", "/receipts/REC404", map[string]any{"fields": map[string]any{"annual_fee": "5"}}, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, app, jsonRequest(t, http.MethodPut, tt.target, tt.body), nil))
		})
	}

	req := httptest.NewRequest(http.MethodPut, "/receipts/REC001", strings.NewReader("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, req, nil))
}

func TestHandleVoidAndRestore(t *testing.T) {
	app := newApp(newService(t, nil))
	do(t, app, uploadRequest(t, "march.xlsx", workbook(t, receiptRow("REC001", "1")), ""), nil)

	var entity ledger.Entity
	status := do(t, app, httptest.NewRequest(http.MethodDelete, "/receipts/REC001", nil), &entity)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, ledger.StatusVoided, entity.Status)

	assert.Equal(t, fiber.StatusConflict, do(t, app, httptest.NewRequest(http.MethodDelete, "/receipts/REC001", nil), nil))
	assert.Equal(t, fiber.StatusConflict, do(t, app, jsonRequest(t, http.MethodPut, "/receipts/REC001",
		map[string]any{"fields": map[string]any{"annual_fee": "5"}}), nil))

	status = do(t, app, httptest.NewRequest(http.MethodPost, "/receipts/REC001/restore", nil), &entity)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, ledger.StatusActive, entity.Status)
	assert.Equal(t, fiber.StatusConflict, do(t, app, httptest.NewRequest(http.MethodPost, "/receipts/REC001/restore", nil), nil))
}

func TestHandleVersionAt(t *testing.T) {
	app := newApp(newService(t, nil))
	do(t, app, uploadRequest(t, "march.xlsx", workbook(t, receiptRow("REC001", "1")), ""), nil)
	require.Equal(t, fiber.StatusOK, do(t, app, jsonRequest(t, http.MethodPut, "/receipts/REC001",
		map[string]any{"fields": map[string]any{"annual_fee": "5"}}), nil))

	var version ledger.Version
	status := do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/as-of?at=2999-12-31", nil), &version)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 2, version.Number)

	at := url.QueryEscape(time.Now().Add(time.Hour).Format(time.RFC3339))
	status = do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/as-of?at="+at, nil), &version)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 2, version.Number)

	assert.Equal(t, fiber.StatusNotFound, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/as-of?at=2000-01-01", nil), nil),
		"nothing was recorded yet")
	assert.Equal(t, fiber.StatusNotFound, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC404/as-of?at=2999-12-31", nil), nil))
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/as-of", nil), nil))
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/REC001/as-of?at=yesterday", nil), nil))
}

func TestHandleList(t *testing.T) {
	app := newApp(newService(t, nil))
	do(t, app, uploadRequest(t, "march.xlsx", workbook(t,
		receiptRow("REC001", "1"),
		[]any{"REC002", "Ravi Kumar", "6A", "upi", "2024-04-01", "2"},
	), ""), nil)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"All", "", 2},
		{"Query", "?query=ravi", 1},
		{"Class", "?class_name=5B", 1},
		{"PaymentAlias", "?payment_mode=GPay", 1},
		{"DateRange", "?date_from=2024-03-20&date_to=2024-04-30", 1},
		{"Status", "?status=voided", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Results []ledger.EntitySummary `json:"results"`
				Total   int                    `json:"total_count"`
			}
			status := do(t, app, httptest.NewRequest(http.MethodGet, "/receipts"+tt.query, nil), &body)
			assert.Equal(t, fiber.StatusOK, status)
			assert.Equal(t, tt.want, body.Total)
			assert.Len(t, body.Results, tt.want)
		})
	}

	for _, bad := range []string{"?date_from=15-03-2024", "?status=archived", "?payment_mode=barter"} {
		assert.Equal(t, fiber.StatusBadRequest, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts"+bad, nil), nil), bad)
	}

	var stats map[string]any
	assert.Equal(t, fiber.StatusOK, do(t, app, httptest.NewRequest(http.MethodGet, "/receipts/stats", nil), &stats))
	assert.EqualValues(t, 2, stats["active_receipts"])
}

func TestHandleBatches(t *testing.T) {
	archive, client := mocks.NewArchive("receipts")
	data := workbook(t, receiptRow("REC001", "1"))
	client.On("PutObject", mock.Anything, "receipts", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)
	client.On("GetObject", mock.Anything, "receipts", mock.Anything, mock.Anything).
		Return(io.NopCloser(bytes.NewReader(data)), nil)
	app := newApp(newService(t, archive))

	var res reconcile.BatchResult
	do(t, app, uploadRequest(t, "march.xlsx", data, ""), &res)
	require.NotEmpty(t, res.BatchID)

	var page struct {
		Results []ledger.Batch `json:"results"`
		Total   int            `json:"total_count"`
	}
	assert.Equal(t, fiber.StatusOK, do(t, app, httptest.NewRequest(http.MethodGet, "/batches", nil), &page))
	assert.Equal(t, 1, page.Total)

	var batch ledger.Batch
	assert.Equal(t, fiber.StatusOK, do(t, app, httptest.NewRequest(http.MethodGet, "/batches/"+res.BatchID, nil), &batch))
	assert.Equal(t, 1, batch.Inserted)
	assert.Equal(t, fiber.StatusNotFound, do(t, app, httptest.NewRequest(http.MethodGet, "/batches/missing", nil), nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/batches/"+res.BatchID+"/source", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, storage.SpreadsheetContentType, resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "march.xlsx")
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

// workbookWithHeader builds an .xlsx with a custom header row.
func workbookWithHeader(t *testing.T, head []any, rows ...[]any) []byte {
	t.Helper()
	saved := header
	header = head
	defer func() { header = saved }()
	return workbook(t, rows...)
}
