package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/store"
)

func newTestServer(t *testing.T) (*store.SQLiteStore, http.Handler) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := NewServer(st, Options{
		AllowedOrigins:         []string{"https://ui.example.jp"},
		DefaultPipelineVersion: "default-v1",
	})
	return st, srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestRequestIDPropagated(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/extraction-logs", nil)
	req.Header.Set("Origin", "https://ui.example.jp")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ui.example.jp", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListParliamentaryGroups(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()

	for _, g := range []*model.ParliamentaryGroup{
		{Name: "公明党・改革クラブ", GoverningBodyID: 1, Chamber: "衆議院", IsActive: false,
			StartDate: model.DatePtr(1999, time.January, 1), EndDate: model.DatePtr(2003, time.December, 31)},
		{Name: "公明党", GoverningBodyID: 1, Chamber: "衆議院", IsActive: true, StartDate: model.DatePtr(2004, time.January, 1)},
		{Name: "自由民主党", GoverningBodyID: 1, Chamber: "参議院", IsActive: true},
	} {
		require.NoError(t, st.CreateParliamentaryGroup(ctx, g))
	}

	type groupsResp struct {
		GoverningBodyID     int64                      `json:"governing_body_id"`
		ParliamentaryGroups []model.ParliamentaryGroup `json:"parliamentary_groups"`
	}

	rec := do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups?as_of=2001-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[groupsResp](t, rec)
	assert.Equal(t, int64(1), resp.GoverningBodyID)
	require.Len(t, resp.ParliamentaryGroups, 2)
	assert.Equal(t, "公明党・改革クラブ", resp.ParliamentaryGroups[0].Name)
	assert.Equal(t, model.Date(2003, time.December, 31), resp.ParliamentaryGroups[0].EndDate.UTC())

	rec = do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[groupsResp](t, rec)
	require.Len(t, resp.ParliamentaryGroups, 2)
	for _, g := range resp.ParliamentaryGroups {
		assert.True(t, g.IsActive, "%s should not be listed without active_only=false", g.Name)
	}

	rec = do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups?active_only=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[groupsResp](t, rec)
	assert.Len(t, resp.ParliamentaryGroups, 3)

	rec = do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups?active_only=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups?active_only=true&chamber=%E8%A1%86%E8%AD%B0%E9%99%A2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[groupsResp](t, rec)
	require.Len(t, resp.ParliamentaryGroups, 1)
	assert.Equal(t, "公明党", resp.ParliamentaryGroups[0].Name)

	rec = do(t, h, http.MethodGet, "/governing-bodies/42/parliamentary-groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"parliamentary_groups":[]`)

	rec = do(t, h, http.MethodGet, "/governing-bodies/1/parliamentary-groups?as_of=2001/06/01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/governing-bodies/abc/parliamentary-groups", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitExtractionAndVerify(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()

	p := &model.Politician{Name: "山田"}
	require.NoError(t, st.CreatePolitician(ctx, p))
	base := "/entities/politician/" + itoa(p.ID)

	rec := do(t, h, http.MethodPost, base+"/extractions", map[string]any{
		"pipeline_version": "v1",
		"model_name":       "gemini-2.0-flash",
		"result":           map[string]any{"name": "山田太郎", "district": "東京1区", "confidence_score": 0.9},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[extraction.Result](t, rec)
	assert.True(t, first.Applied)

	l, err := st.GetExtractionLog(ctx, first.LogID)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", *l.ModelName)
	assert.NotEmpty(t, l.Metadata["request_id"])

	rec = do(t, h, http.MethodPut, base+"/verification", map[string]any{"verified": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/extractions", map[string]any{
		"result": map[string]any{"name": "別人"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[extraction.Result](t, rec)
	assert.False(t, second.Applied)
	assert.Equal(t, extraction.ReasonManuallyVerified, second.Reason)

	l, err = st.GetExtractionLog(ctx, second.LogID)
	require.NoError(t, err)
	assert.Equal(t, "default-v1", l.PipelineVersion)

	got, err := st.GetPolitician(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "山田太郎", got.Name)
}

func TestSubmitExtractionErrors(t *testing.T) {
	st, h := newTestServer(t)
	sp := &model.Speaker{Name: "議長"}
	require.NoError(t, st.CreateSpeaker(context.Background(), sp))

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown type", "/entities/committee/1/extractions", map[string]any{"result": map[string]any{}}, http.StatusBadRequest},
		{"bad id", "/entities/speaker/0/extractions", map[string]any{"result": map[string]any{}}, http.StatusBadRequest},
		{"missing result", "/entities/speaker/" + itoa(sp.ID) + "/extractions", map[string]any{}, http.StatusBadRequest},
		{"confidence out of range", "/entities/speaker/" + itoa(sp.ID) + "/extractions",
			map[string]any{"result": map[string]any{"name": "x", "confidence_score": 1.5}}, http.StatusBadRequest},
		{"entity not found", "/entities/speaker/999/extractions", map[string]any{"result": map[string]any{"name": "x"}}, http.StatusNotFound},
		{"malformed body", "/entities/speaker/" + itoa(sp.ID) + "/extractions", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestSetVerificationErrors(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPut, "/entities/speaker/5/verification", map[string]any{"verified": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/entities/speaker/5/verification", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractionLogEndpoints(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()

	day := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	_, err := st.ImportExtractionLogs(ctx, []model.ExtractionLog{
		{EntityType: model.EntityTypePolitician, EntityID: 1, PipelineVersion: "v1", ConfidenceScore: ptr(0.9), CreatedAt: day},
		{EntityType: model.EntityTypePolitician, EntityID: 1, PipelineVersion: "v2", ConfidenceScore: ptr(0.5), CreatedAt: day.Add(time.Hour)},
		{EntityType: model.EntityTypeSpeaker, EntityID: 2, PipelineVersion: "v1", CreatedAt: day.AddDate(0, 0, 1)},
	})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/extraction-logs?entity_type=politician&entity_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[model.ExtractionLogPage](t, rec)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, "v2", page.Logs[0].PipelineVersion)

	rec = do(t, h, http.MethodGet, "/extraction-logs?date_to=2024-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[model.ExtractionLogPage](t, rec)
	assert.Equal(t, 2, page.TotalCount)

	rec = do(t, h, http.MethodGet, "/extraction-logs/"+itoa(page.Logs[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/extraction-logs/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/extraction-logs/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.ExtractionStatistics](t, rec)
	assert.Equal(t, 3, stats.TotalCount)
	assert.Equal(t, 2, stats.ByEntityType["politician"])
	assert.Len(t, stats.DailyCounts, 2)

	for _, q := range []string{"entity_type=minutes", "entity_id=-1", "min_confidence=2", "limit=x", "date_from=yesterday"} {
		rec = do(t, h, http.MethodGet, "/extraction-logs?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestWriteError_StorageErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec := httptest.NewRecorder()
	writeError(rec, req, &store.StorageError{Op: "postgres: select", Err: errors.New("syntax error")})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "storage_error")
	assert.False(t, strings.Contains(body, "syntax error"), "driver detail must not leak")

	rec = httptest.NewRecorder()
	writeError(rec, req, &store.StorageError{Op: "sqlite: insert", Err: errors.New("database is locked")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	writeError(rec, req, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func ptr[T any](v T) *T { return &v }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
