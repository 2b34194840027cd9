// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single ingested cash movement of a business.
// Positive amounts are inflows, negative amounts are outflows.
type Transaction struct {
	ID          int64           `json:"id,omitempty"`
	BusinessID  string          `json:"business_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// LabeledTransaction is a Transaction annotated with the running balance of its
// business and the forward-looking stress label.
type LabeledTransaction struct {
	Transaction
	RunningBalance     decimal.Decimal `json:"running_balance"`
	BelowThreshold     bool            `json:"below_threshold"`
	StressDaysNext30d  int             `json:"stress_days_next_30d"`
	StressEventNext30d int             `json:"stress_event_next_30d"`
}

// WeeklyRow is one business x week bucket.
// StressEventNext30d is nil when the rows were aggregated from unlabeled transactions.
type WeeklyRow struct {
	BusinessID         string    `json:"business_id"`
	WeekStart          time.Time `json:"week_start"`
	Inflow             float64   `json:"inflow"`
	Outflow            float64   `json:"outflow"`
	NetCash            float64   `json:"net_cash"`
	StressEventNext30d *int      `json:"stress_event_next_30d,omitempty"`
}

// HasLabel reports whether the row carries a target value
func (r WeeklyRow) HasLabel() bool {
	return r.StressEventNext30d != nil
}

// WindowFeatures holds the rolling statistics of one window size.
// InflowVolatility is NaN when the window holds fewer than two weeks.
type WindowFeatures struct {
	Weeks            int     `json:"weeks"`
	NetCashTrend     float64 `json:"net_cash_trend"`
	InflowVolatility float64 `json:"inflow_volatility"`
	OutflowRigidity  float64 `json:"outflow_rigidity"`
}

// FeatureRow is a WeeklyRow extended with buffer and rolling-window features.
// Every value is computed from weeks at or before WeekStart of the same business.
type FeatureRow struct {
	WeeklyRow
	BufferLevel float64          `json:"buffer_level"`
	BufferDecay float64          `json:"buffer_decay"`
	Windows     []WindowFeatures `json:"windows"`
}

// Driver is a single feature contribution reported by the explainer
type Driver struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// DriverReportType tags a DriverReport with the kind of model that produced it
type DriverReportType string

const (
	DriverReportBaseline DriverReportType = "baseline"
	DriverReportLogistic DriverReportType = "logistic_regression"
)

// DriverReport is the ranked driver list handed to the explanation renderer.
// It is the only input the renderer receives.
type DriverReport struct {
	Type    DriverReportType `json:"type"`
	Drivers []Driver         `json:"drivers"`
}

// RiskTier is the coarse bucket a stress probability maps to
type RiskTier string

const (
	RiskTierLow   RiskTier = "low"
	RiskTierWatch RiskTier = "watch"
	RiskTierHigh  RiskTier = "high"
)
