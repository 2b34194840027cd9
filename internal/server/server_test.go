package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finz/cashflow-risk/internal/config"
	"github.com/finz/cashflow-risk/internal/di"
	"github.com/finz/cashflow-risk/internal/modules/labeling"
	"github.com/finz/cashflow-risk/internal/modules/training"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		Port:            8001,
		DevMode:         true,
		DatabaseDriver:  config.DriverSQLite,
		ArtifactBackend: config.ArtifactBackendSQLite,
		Pipeline: config.PipelineConfig{
			BalanceThreshold:   labeling.DefaultConfig().BalanceThreshold,
			StressDaysRequired: 7,
			LookaheadEntries:   30,
			SplitDate:          training.DefaultConfig().SplitDate,
			MaxIter:            1000,
			TopKDrivers:        5,
		},
		BatchWorkers: 2,
	}

	container, _, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   true,
	})
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEndToEnd_StableBusiness(t *testing.T) {
	s := newTestServer(t)

	var b strings.Builder
	b.WriteString("business_id\tdate\tdescription\tamount\n")
	for day := 2; day <= 31; day++ {
		fmt.Fprintf(&b, "B2\t2023-01-%02d\tdaily sales\t100\n", day)
	}

	rec := serve(s, http.MethodPost, "/api/data/ingest", b.String())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(s, http.MethodPost, "/api/score", `{"business_id":"B2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no model trained yet")

	rec = serve(s, http.MethodPost, "/api/train", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"model_type":"dummy_constant"`)

	rec = serve(s, http.MethodPost, "/api/score", `{"business_id":"B2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"risk_tier":"low"`)
	assert.Contains(t, rec.Body.String(), `"risk_probability":0`)

	rec = serve(s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(30), status.Transactions)
	assert.Equal(t, 1, status.Businesses)
	assert.NotEmpty(t, status.ModelVersion)
	assert.Contains(t, status.Databases, "ledger")

	rec = serve(s, http.MethodGet, "/api/system/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestJobsAndRunsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/system/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "check_databases")

	rec = serve(s, http.MethodGet, "/api/system/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
