// Package features turns transactions into the weekly risk-feature table.
package features

import (
	"sort"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/shopspring/decimal"
)

// WeekStart returns the Monday 00:00 UTC on or before t.
// Training and scoring both bucket through this function so their weeks agree.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday is Sunday=0; shift so Monday=0
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

type bucketKey struct {
	businessID string
	weekStart  int64
}

type bucket struct {
	businessID string
	weekStart  time.Time
	inflow     decimal.Decimal
	outflow    decimal.Decimal
	net        decimal.Decimal
	label      int
	labeled    bool
}

// AggregateWeekly buckets unlabeled transactions (the scoring path).
// The resulting rows carry no stress label.
func AggregateWeekly(txs []domain.Transaction) []domain.WeeklyRow {
	agg := newAggregator()
	for _, tx := range txs {
		agg.add(tx, 0, false)
	}
	return agg.rows()
}

// AggregateLabeledWeekly buckets labeled transactions (the training path).
// Each row's label is the max over the transactions in its bucket.
func AggregateLabeledWeekly(txs []domain.LabeledTransaction) []domain.WeeklyRow {
	agg := newAggregator()
	for _, lt := range txs {
		agg.add(lt.Transaction, lt.StressEventNext30d, true)
	}
	return agg.rows()
}

type aggregator struct {
	buckets map[bucketKey]*bucket
}

func newAggregator() *aggregator {
	return &aggregator{buckets: make(map[bucketKey]*bucket)}
}

func (a *aggregator) add(tx domain.Transaction, label int, labeled bool) {
	ws := WeekStart(tx.Date)
	key := bucketKey{businessID: tx.BusinessID, weekStart: ws.Unix()}

	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{businessID: tx.BusinessID, weekStart: ws}
		a.buckets[key] = b
	}

	switch {
	case tx.Amount.IsPositive():
		b.inflow = b.inflow.Add(tx.Amount)
	case tx.Amount.IsNegative():
		b.outflow = b.outflow.Add(tx.Amount)
	}
	b.net = b.net.Add(tx.Amount)

	if labeled {
		if !b.labeled || label > b.label {
			b.label = label
		}
		b.labeled = true
	}
}

// rows emits one WeeklyRow per bucket sorted by (business_id, week_start)
func (a *aggregator) rows() []domain.WeeklyRow {
	out := make([]domain.WeeklyRow, 0, len(a.buckets))
	for _, b := range a.buckets {
		row := domain.WeeklyRow{
			BusinessID: b.businessID,
			WeekStart:  b.weekStart,
			Inflow:     b.inflow.InexactFloat64(),
			Outflow:    b.outflow.InexactFloat64(),
			NetCash:    b.net.InexactFloat64(),
		}
		if b.labeled {
			label := b.label
			row.StressEventNext30d = &label
		}
		out = append(out, row)
	}
	SortRows(out)
	return out
}

// SortRows orders weekly rows by business_id, then week_start
func SortRows(rows []domain.WeeklyRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].BusinessID != rows[j].BusinessID {
			return rows[i].BusinessID < rows[j].BusinessID
		}
		return rows[i].WeekStart.Before(rows[j].WeekStart)
	})
}
