package evaluation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedModel returns x[0] as the positive-class probability
type fixedModel struct{}

func (fixedModel) PredictProba(x []float64) []float64 { return []float64{1 - x[0], x[0]} }
func (fixedModel) Classes() []int                     { return []int{0, 1} }

// constantModel only knows a single class
type constantModel struct{ class int }

func (m constantModel) PredictProba([]float64) []float64 { return []float64{1} }
func (m constantModel) Classes() []int                  { return []int{m.class} }

func rows(ps ...float64) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = []float64{p}
	}
	return out
}

func TestEvaluate_EmptyTestSet(t *testing.T) {
	m := NewEvaluator(zerolog.Nop()).Evaluate(fixedModel{}, nil, nil)

	assert.Nil(t, m.ROCAUC)
	assert.Nil(t, m.PRAUC)
	assert.Nil(t, m.BrierScore)
	assert.Equal(t, domain.NoteEmptyTestSet, m.Note)
}

func TestEvaluate_SingleClassTestSet(t *testing.T) {
	m := NewEvaluator(zerolog.Nop()).Evaluate(fixedModel{}, rows(0.2, 0.4), []int{0, 0})

	assert.Nil(t, m.ROCAUC)
	assert.Nil(t, m.PRAUC)
	require.NotNil(t, m.BrierScore)
	// P(class 0) = 0.8 and 0.6
	assert.InDelta(t, (0.04+0.16)/2, *m.BrierScore, 1e-12)
	assert.Equal(t, domain.NoteSingleClassTestSet, m.Note)
}

func TestEvaluate_SingleClassUsesPresentClassNotIndexOne(t *testing.T) {
	// Baseline that only knows class 0, evaluated on an all-positive test set
	m := NewEvaluator(zerolog.Nop()).Evaluate(constantModel{class: 0}, rows(0, 0, 0), []int{1, 1, 1})

	require.NotNil(t, m.BrierScore)
	assert.False(t, math.IsNaN(*m.BrierScore))
	assert.Equal(t, 1.0, *m.BrierScore)

	m = NewEvaluator(zerolog.Nop()).Evaluate(constantModel{class: 1}, rows(0, 0), []int{1, 1})
	assert.Equal(t, 0.0, *m.BrierScore)
}

func TestEvaluate_BothClasses(t *testing.T) {
	m := NewEvaluator(zerolog.Nop()).Evaluate(fixedModel{}, rows(0.1, 0.4, 0.35, 0.8), []int{0, 0, 1, 1})

	require.NotNil(t, m.ROCAUC)
	require.NotNil(t, m.PRAUC)
	require.NotNil(t, m.BrierScore)
	assert.InDelta(t, 0.75, *m.ROCAUC, 1e-12)
	assert.InDelta(t, 0.8333333, *m.PRAUC, 1e-6)
	assert.InDelta(t, (0.01+0.16+0.4225+0.04)/4, *m.BrierScore, 1e-12)
	assert.Empty(t, m.Note)
}

func TestMetrics_JSONKeys(t *testing.T) {
	m := NewEvaluator(zerolog.Nop()).Evaluate(fixedModel{}, rows(0.1, 0.8), []int{0, 1})

	b, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "roc_auc")
	assert.Contains(t, decoded, "pr_auc")
	assert.Contains(t, decoded, "brier_score")
	assert.NotContains(t, decoded, "brier")
}

func TestROCAUC_PerfectAndInverted(t *testing.T) {
	assert.InDelta(t, 1.0, ROCAUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, ROCAUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}), 1e-12)
}

func TestROCAUC_TiesCountHalf(t *testing.T) {
	assert.InDelta(t, 0.5, ROCAUC([]float64{0.5, 0.5}, []int{0, 1}), 1e-12)
}

func TestAveragePrecision_Perfect(t *testing.T) {
	assert.InDelta(t, 1.0, AveragePrecision([]float64{0.1, 0.9, 0.8}, []int{0, 1, 1}), 1e-12)
}

func TestBrierScore(t *testing.T) {
	assert.Equal(t, 0.0, BrierScore([]float64{1, 0}, []int{1, 0}))
	assert.Equal(t, 1.0, BrierScore([]float64{0, 1}, []int{1, 0}))
}
