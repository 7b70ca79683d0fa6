package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/database"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers"
	"github.com/username/tradejournal/src/services"
)

const tradesCSV = `Trade Time,Ticker,Action,Qty,Price,Commission
2024-01-15 10:30:00,AAPL,Buy,10,150.00,1.00
2024-01-15 10:31:00,MSFT,Sell,5,400.00,1.00
2024-01-15 10:32:00,TSLA,Buy,0,10.00,0
`

// staticTokens maps tokens straight to user ids.
type staticTokens map[string]string

func (s staticTokens) ValidateToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

type testServer struct {
	handler http.Handler
	store   *database.MemoryTradeStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.InitDB(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := database.NewMemoryTradeStore()
	runs := database.NewImportRunRepository(db, database.DriverSQLite)
	registry := parsers.NewDefaultRegistry()
	commit := services.NewCommitService(registry, store, runs, services.CommitConfig{UploadTTL: time.Hour, DefaultTimezone: "America/New_York"})
	h := NewImportHandler(commit, registry, database.NewPresetRepository(db, database.DriverSQLite), runs, store, 1<<20)

	mux := http.NewServeMux()
	h.Register(mux, AuthMiddleware(staticTokens{"good": "user-1", "other": "user-2"}))
	return &testServer{handler: RequestIDMiddleware(mux), store: store}
}

func (s *testServer) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/runs", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authorization header required"}`, rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/runs", nil), "bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/runs", nil), "good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/import/adapters", nil)
	req.Header.Set("X-Request-ID", "5b0e2a52-8f3e-4b8e-9d53-1c4b1d1f7a10")
	rec := s.do(t, req, "")
	assert.Equal(t, "5b0e2a52-8f3e-4b8e-9d53-1c4b1d1f7a10", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/import/adapters", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rec = s.do(t, req, "")
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}

func TestListAdaptersAndHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/adapters", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Adapters []adapterInfo `json:"adapters"`
	}](t, rec)
	require.Len(t, body.Adapters, 11)
	assert.Equal(t, "ibkr", body.Adapters[0].ID)
	assert.Equal(t, "binanceus", body.Adapters[10].ID)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.store.PingErr = errors.New("down")
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadAndCommitFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, multipartRequest(t, "/api/import/upload", "trades.csv", tradesCSV, nil), "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[services.UploadResult](t, rec)
	assert.Equal(t, 3, up.TotalRows)
	assert.Empty(t, up.MappingErrors)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/commit-start", map[string]any{
		"uploadToken": up.UploadToken,
		"mapping":     up.SuggestedMapping,
		"options":     map[string]any{"chunkSize": 2},
	}), "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decode[services.CommitStartResult](t, rec)
	assert.Equal(t, services.ModeMapping, start.Mode)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/commit-chunk", map[string]any{
		"jobId": start.JobID, "offset": 0, "limit": 5000,
	}), "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	chunk := decode[services.CommitChunkResult](t, rec)
	assert.Equal(t, 2, chunk.Added)
	assert.Equal(t, 1, chunk.ErrorCount)
	assert.True(t, chunk.Done)
	require.NotEmpty(t, chunk.ErrorsCSVURL)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, chunk.ErrorsCSVURL, nil), "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "ZERO_QTY")

	rec = s.do(t, httptest.NewRequest(http.MethodGet, chunk.ErrorsCSVURL, nil), "other")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/runs?limit=10", nil), "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), start.JobID)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/runs?limit=abc", nil), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/import/commit-start", map[string]any{
		"uploadToken": "2b1f7c56-2c67-4a4b-9a3f-0f3a3c1c9d11",
	}), "good")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/commit-chunk", map[string]any{
		"jobId": "2b1f7c56-2c67-4a4b-9a3f-0f3a3c1c9d11", "limit": 0,
	}), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/commit-chunk", map[string]any{
		"jobId": "2b1f7c56-2c67-4a4b-9a3f-0f3a3c1c9d11", "limit": 10, "surprise": true,
	}), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsBinary(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, multipartRequest(t, "/api/import/upload", "trades.csv", "%PDF-1.7\nbinary", nil), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, multipartRequest(t, "/api/import/upload", "trades.csv", strings.Repeat("a", 2<<20), nil), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOneShotImport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, multipartRequest(t, "/api/import", "trades.csv", tradesCSV, map[string]string{"tz": "America/New_York"}), "good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[services.ImportResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Stats.Inserted)
}

func TestOneShotImportRollback(t *testing.T) {
	s := newTestServer(t)
	s.store.InsertErr = func(models.TradeRecord) error { return errors.New("disk full") }

	rec := s.do(t, multipartRequest(t, "/api/import", "trades.csv", tradesCSV, nil), "good")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	resp := decode[services.ImportResponse](t, rec)
	assert.False(t, resp.Success)
	assert.True(t, resp.RollbackRequired)
	assert.Equal(t, "All 2 trades failed to import. No data was saved.", resp.Details)
}

func TestPresets(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/presets", nil), "good")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	list := decode[presetListResponse](t, rec)
	assert.NotEmpty(t, list.Broker)
	assert.Empty(t, list.User)

	req := httptest.NewRequest(http.MethodGet, "/api/import/presets", nil)
	req.Header.Set("If-None-Match", etag)
	rec = s.do(t, req, "good")
	assert.Equal(t, http.StatusNotModified, rec.Code)

	mapping := map[string]string{
		"timestamp": "Trade Time", "symbol": "Ticker", "side": "Action", "quantity": "Qty", "price": "Price",
	}
	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/presets", map[string]any{"name": "my broker", "mapping": mapping}), "good")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[struct {
		ID int64 `json:"id"`
	}](t, rec)
	require.NotZero(t, saved.ID)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/presets", map[string]any{"name": "bad", "mapping": map[string]string{"symbol": "Ticker"}}), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/import/presets", map[string]any{"mapping": mapping}), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := "/api/import/presets/" + strconv.FormatInt(saved.ID, 10)
	rec = s.do(t, httptest.NewRequest(http.MethodGet, target, nil), "good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "my broker")

	rec = s.do(t, httptest.NewRequest(http.MethodGet, target+"?headers=trade%20time,TICKER,Action,Qty,Price", nil), "good")
	require.Equal(t, http.StatusOK, rec.Code)
	applied := decode[struct {
		Mapping       map[string]string `json:"mapping"`
		MappingErrors []string          `json:"mappingErrors"`
	}](t, rec)
	assert.Equal(t, "TICKER", applied.Mapping["symbol"])
	assert.Empty(t, applied.MappingErrors)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, target, nil), "other")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/import/presets/abc", nil), "good")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
