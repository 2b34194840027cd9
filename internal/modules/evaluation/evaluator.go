// Package evaluation scores a fitted classifier on the held-out split.
package evaluation

import (
	"sort"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Predictor is what the evaluator needs from a fitted pipeline
type Predictor interface {
	PredictProba(x []float64) []float64
	Classes() []int
}

// Metrics holds the evaluation result. A nil metric is undefined for the test set.
type Metrics struct {
	ROCAUC     *float64 `json:"roc_auc"`
	PRAUC      *float64 `json:"pr_auc"`
	BrierScore *float64 `json:"brier_score"`
	Note       string   `json:"note,omitempty"`
}

// Evaluator computes discrimination and calibration metrics
type Evaluator struct {
	log zerolog.Logger
}

// NewEvaluator creates an evaluator
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log.With().Str("component", "evaluator").Logger()}
}

// Evaluate scores model on (x, y).
//
// An empty test set yields no metrics. A single-class test set only yields the
// Brier score, computed on the probability the model gives the class that is
// actually present. Otherwise ROC AUC, average precision and Brier score are
// computed on the positive-class probability.
func (e *Evaluator) Evaluate(model Predictor, x [][]float64, y []int) Metrics {
	if len(x) == 0 {
		e.log.Warn().Msg("Empty test set, metrics undefined")
		return Metrics{Note: domain.NoteEmptyTestSet}
	}

	classes := model.Classes()
	present := distinct(y)

	if len(present) < 2 {
		actual := present[0]
		sq := 0.0
		for _, row := range x {
			p := classProba(model.PredictProba(row), classes, actual)
			sq += (1 - p) * (1 - p)
		}
		brier := sq / float64(len(x))

		e.log.Warn().Int("class", actual).Int("rows", len(x)).Msg("Single-class test set, discrimination metrics undefined")
		return Metrics{BrierScore: &brier, Note: domain.NoteSingleClassTestSet}
	}

	scores := make([]float64, len(x))
	for i, row := range x {
		scores[i] = classProba(model.PredictProba(row), classes, 1)
	}

	roc := ROCAUC(scores, y)
	ap := AveragePrecision(scores, y)
	brier := BrierScore(scores, y)
	return Metrics{ROCAUC: &roc, PRAUC: &ap, BrierScore: &brier}
}

// classProba returns the probability assigned to class, 0 if the model cannot output it
func classProba(probs []float64, classes []int, class int) float64 {
	for i, c := range classes {
		if c == class {
			return probs[i]
		}
	}
	return 0
}

func distinct(y []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// ROCAUC is the area under the ROC curve. Both classes must be present in y.
func ROCAUC(scores []float64, y []int) float64 {
	s := make([]float64, len(scores))
	copy(s, scores)
	labels := make([]bool, len(y))
	for i, v := range y {
		labels[i] = v == 1
	}
	stat.SortWeightedLabeled(s, labels, nil)
	tpr, fpr, _ := stat.ROC(nil, s, labels, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// AveragePrecision summarises the precision-recall curve as the recall-weighted
// mean of precision at each distinct score threshold.
func AveragePrecision(scores []float64, y []int) float64 {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	positives := 0
	for _, v := range y {
		if v == 1 {
			positives++
		}
	}
	if positives == 0 {
		return 0
	}

	ap, prevRecall := 0.0, 0.0
	tp, fp := 0, 0
	for k, i := range idx {
		if y[i] == 1 {
			tp++
		} else {
			fp++
		}
		// Only close a threshold once every tied score has been counted
		if k+1 < len(idx) && scores[idx[k+1]] == scores[i] {
			continue
		}
		recall := float64(tp) / float64(positives)
		precision := float64(tp) / float64(tp+fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return ap
}

// BrierScore is the mean squared difference between positive-class probability and outcome
func BrierScore(scores []float64, y []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sq := 0.0
	for i, p := range scores {
		d := p - float64(y[i])
		sq += d * d
	}
	return sq / float64(len(scores))
}
