// Package labeling derives the forward-looking cash-flow stress label per transaction.
package labeling

import (
	"sort"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/shopspring/decimal"
)

// Config holds the labeling thresholds
type Config struct {
	BalanceThreshold decimal.Decimal // running balance strictly below this counts as a stress day
	DaysRequired     int             // stress days within the lookahead that trigger a positive label
	Lookahead        int             // number of following entries inspected
}

// DefaultConfig returns the production thresholds: -5000 balance, 7 of the next 30 entries
func DefaultConfig() Config {
	return Config{
		BalanceThreshold: decimal.NewFromInt(-5000),
		DaysRequired:     7,
		Lookahead:        30,
	}
}

// Label computes running balance and stress label for every transaction.
//
// Transactions are partitioned by business; within a business they are ordered by
// date with ties kept in input order. For entry i, stress_days_next_30d counts the
// below-threshold entries among i+1 .. i+Lookahead of the same business only; when
// fewer entries remain the count covers what is left. The output is ordered by
// business_id, then date.
func Label(txs []domain.Transaction, cfg Config) []domain.LabeledTransaction {
	if len(txs) == 0 {
		return []domain.LabeledTransaction{}
	}

	groups := partitionByBusiness(txs)

	out := make([]domain.LabeledTransaction, 0, len(txs))
	for _, group := range groups {
		out = append(out, labelBusiness(group, cfg)...)
	}
	return out
}

// partitionByBusiness groups transactions per business (sorted by business_id)
// and stable-sorts each group by date.
func partitionByBusiness(txs []domain.Transaction) [][]domain.Transaction {
	byBusiness := make(map[string][]domain.Transaction)
	var ids []string
	for _, tx := range txs {
		if _, ok := byBusiness[tx.BusinessID]; !ok {
			ids = append(ids, tx.BusinessID)
		}
		byBusiness[tx.BusinessID] = append(byBusiness[tx.BusinessID], tx)
	}
	sort.Strings(ids)

	groups := make([][]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		group := byBusiness[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})
		groups = append(groups, group)
	}
	return groups
}

func labelBusiness(group []domain.Transaction, cfg Config) []domain.LabeledTransaction {
	n := len(group)
	labeled := make([]domain.LabeledTransaction, n)

	// prefix[k] = number of below-threshold entries among group[0:k]
	prefix := make([]int, n+1)
	balance := decimal.Zero
	for i, tx := range group {
		balance = balance.Add(tx.Amount)
		below := balance.LessThan(cfg.BalanceThreshold)

		labeled[i] = domain.LabeledTransaction{
			Transaction:    tx,
			RunningBalance: balance,
			BelowThreshold: below,
		}

		prefix[i+1] = prefix[i]
		if below {
			prefix[i+1]++
		}
	}

	for i := range labeled {
		start := i + 1
		end := start + cfg.Lookahead
		if end > n {
			end = n
		}
		count := 0
		if start < end {
			count = prefix[end] - prefix[start]
		}

		labeled[i].StressDaysNext30d = count
		if count >= cfg.DaysRequired {
			labeled[i].StressEventNext30d = 1
		}
	}

	return labeled
}
