package receipts_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"receipt-ledger/core/ledger/memstore"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/server"
	"receipt-ledger/core/storage"
	"receipt-ledger/feature/receipts"
)

var header = []any{"Receipt No", "Student Name", "Class", "Payment Mode", "Date", "Tuition Fee"}

// workbook builds an .xlsx with the standard header followed by rows.
func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range append([][]any{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func receiptRow(number, fee string) []any {
	return []any{number, "Asha Rao", "5B", "cash", "2024-03-15", fee}
}

func newService(t *testing.T, archive *storage.Archive) *receipts.Service {
	t.Helper()
	engine := reconcile.NewEngine(memstore.New(time.Second), zap.NewNop(), reconcile.Config{})
	return receipts.NewService(engine, archive, zap.NewNop(), server.Config{MaxUploadMB: 1, DefaultActor: "office"})
}

func newApp(svc *receipts.Service) *fiber.App {
	app := fiber.New()
	receipts.NewHandler(svc).RegisterRoutes(app)
	return app
}

func uploadRequest(t *testing.T, filename string, data []byte, query string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("actor", "clerk"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/receipts/upload"+query, body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	var body io.Reader
	if v != nil {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

// do runs req and decodes the JSON response into out when out is non-nil.
func do(t *testing.T, app *fiber.App, req *http.Request, out any) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
