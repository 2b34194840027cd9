package features

import (
	"fmt"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/pkg/formulas"
)

// Windows are the rolling window sizes in weeks
var Windows = []int{4, 8, 12}

// slidingWindow keeps the last size weeks of one business
type slidingWindow struct {
	size    int
	inflow  []float64
	outflow []float64
	net     []float64
}

func newSlidingWindow(size int) *slidingWindow {
	return &slidingWindow{
		size:    size,
		inflow:  make([]float64, 0, size),
		outflow: make([]float64, 0, size),
		net:     make([]float64, 0, size),
	}
}

func (w *slidingWindow) push(row domain.WeeklyRow) {
	if len(w.net) == w.size {
		w.inflow = append(w.inflow[:0], w.inflow[1:]...)
		w.outflow = append(w.outflow[:0], w.outflow[1:]...)
		w.net = append(w.net[:0], w.net[1:]...)
	}
	w.inflow = append(w.inflow, row.Inflow)
	w.outflow = append(w.outflow, row.Outflow)
	w.net = append(w.net, row.NetCash)
}

func (w *slidingWindow) features() domain.WindowFeatures {
	return domain.WindowFeatures{
		Weeks:            w.size,
		NetCashTrend:     formulas.Sum(w.net),
		InflowVolatility: formulas.SampleStdDev(w.inflow),
		OutflowRigidity:  formulas.FractionWhere(w.outflow, func(v float64) bool { return v < 0 }),
	}
}

// EngineerFeatures computes buffer and rolling-window features per business.
//
// The input is not modified. Rows are sorted by (business_id, week_start) and each
// business is scanned in week order with its own windows, so every value only
// depends on the current and earlier weeks of the same business.
func EngineerFeatures(rows []domain.WeeklyRow) []domain.FeatureRow {
	sorted := make([]domain.WeeklyRow, len(rows))
	copy(sorted, rows)
	SortRows(sorted)

	out := make([]domain.FeatureRow, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].BusinessID == sorted[start].BusinessID {
			end++
		}
		out = append(out, engineerBusiness(sorted[start:end])...)
		start = end
	}
	return out
}

func engineerBusiness(group []domain.WeeklyRow) []domain.FeatureRow {
	windows := make([]*slidingWindow, len(Windows))
	for i, size := range Windows {
		windows[i] = newSlidingWindow(size)
	}

	out := make([]domain.FeatureRow, len(group))
	buffer := 0.0
	for i, row := range group {
		prev := buffer
		buffer += row.NetCash

		fr := domain.FeatureRow{
			WeeklyRow:   row,
			BufferLevel: buffer,
			Windows:     make([]domain.WindowFeatures, len(windows)),
		}
		if i > 0 {
			fr.BufferDecay = buffer - prev
		}
		if row.StressEventNext30d != nil {
			label := *row.StressEventNext30d
			fr.StressEventNext30d = &label
		}

		for j, w := range windows {
			w.push(row)
			fr.Windows[j] = w.features()
		}
		out[i] = fr
	}
	return out
}

// FeatureNames returns the model's feature columns in vector order
func FeatureNames() []string {
	names := []string{"inflow", "outflow", "net_cash", "buffer_level", "buffer_decay"}
	for _, w := range Windows {
		names = append(names,
			fmt.Sprintf("net_cash_trend_%dw", w),
			fmt.Sprintf("inflow_volatility_%dw", w),
			fmt.Sprintf("outflow_rigidity_%dw", w),
		)
	}
	return names
}

// Vector flattens a feature row in FeatureNames order. Missing values stay NaN.
func Vector(row domain.FeatureRow) []float64 {
	v := make([]float64, 0, 5+3*len(row.Windows))
	v = append(v, row.Inflow, row.Outflow, row.NetCash, row.BufferLevel, row.BufferDecay)
	for _, w := range row.Windows {
		v = append(v, w.NetCashTrend, w.InflowVolatility, w.OutflowRigidity)
	}
	return v
}

// Matrix flattens rows into a feature matrix and, for labeled rows, a target vector.
// It fails with a ConfigurationError when any row lacks the target.
func Matrix(rows []domain.FeatureRow) ([][]float64, []int, error) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, row := range rows {
		if row.StressEventNext30d == nil {
			return nil, nil, &domain.ConfigurationError{
				Option: "stress_event_next_30d",
				Reason: fmt.Sprintf("target missing for business %s week %s", row.BusinessID, row.WeekStart.Format("2006-01-02")),
			}
		}
		x[i] = Vector(row)
		y[i] = *row.StressEventNext30d
	}
	return x, y, nil
}
