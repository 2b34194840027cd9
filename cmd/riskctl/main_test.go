package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/evaluation"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFormat(t *testing.T, format string) {
	t.Helper()
	prev := outputFormat
	outputFormat = format
	t.Cleanup(func() { outputFormat = prev })
}

func sampleItems() []services.BatchItem {
	return []services.BatchItem{
		{BusinessID: "B1", Score: &services.ScoreResponse{
			BusinessID:      "B1",
			WeekStart:       "2023-03-06",
			RiskProbability: 0.7123,
			RiskTier:        domain.RiskTierHigh,
			Drivers: domain.DriverReport{
				Type:    domain.DriverReportLogistic,
				Drivers: []domain.Driver{{Feature: "net_cash", Weight: -1.25}},
			},
			Explanation: "Risk is driven primarily by net_cash contributed to risk.",
		}},
		{BusinessID: "B9", Err: errors.New("no transactions found for business B9")},
	}
}

func TestPrintScores_Table(t *testing.T) {
	withFormat(t, "table")
	var buf bytes.Buffer

	require.NoError(t, printScores(&buf, sampleItems()))
	out := buf.String()
	assert.Contains(t, out, "BUSINESS")
	assert.Contains(t, out, "0.7123")
	assert.Contains(t, out, "net_cash (-1.2500)")
	assert.Contains(t, out, "no transactions found for business B9")
}

func TestPrintScores_JSON(t *testing.T) {
	withFormat(t, "json")
	var buf bytes.Buffer

	require.NoError(t, printScores(&buf, sampleItems()))
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "high", decoded[0]["risk_tier"])
	assert.Equal(t, "B9", decoded[1]["business_id"])
	assert.Contains(t, decoded[1], "error")
}

func TestPrintTrain(t *testing.T) {
	withFormat(t, "table")
	auc := 0.75
	var buf bytes.Buffer

	require.NoError(t, printTrain(&buf, &services.TrainResponse{
		ModelVersion: "v20240101_000000.000000_abcdef",
		ModelType:    "logistic_regression",
		Metrics:      evaluation.Metrics{ROCAUC: &auc},
	}))
	assert.Contains(t, buf.String(), "0.7500")
	assert.Contains(t, buf.String(), "v20240101_000000.000000_abcdef")
}

func TestValidateFormat(t *testing.T) {
	withFormat(t, "yaml")
	assert.Error(t, validateFormat())

	outputFormat = "json"
	assert.NoError(t, validateFormat())
}

func TestCountFailed(t *testing.T) {
	assert.Equal(t, 1, countFailed(sampleItems()))
}
