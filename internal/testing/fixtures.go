package testing

import (
	"fmt"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/shopspring/decimal"
)

// FixtureStart is the Monday every generated history starts on
var FixtureStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// Tx builds a transaction from a YYYY-MM-DD date and a decimal amount string.
// It panics on malformed input since it is only used with literals in tests.
func Tx(businessID, date, amount string) domain.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(fmt.Sprintf("fixture date %q: %v", date, err))
	}
	return domain.Transaction{
		BusinessID:  businessID,
		Date:        d,
		Description: "fixture",
		Amount:      decimal.RequireFromString(amount),
	}
}

// DailyTx builds a transaction dated FixtureStart + day
func DailyTx(businessID string, day int, amount int64, description string) domain.Transaction {
	return domain.Transaction{
		BusinessID:  businessID,
		Date:        FixtureStart.AddDate(0, 0, day),
		Description: description,
		Amount:      decimal.NewFromInt(amount),
	}
}

// StressedBusinessFixture generates ten weeks of daily transactions whose weekly
// net cash alternates +1000 / -1200. An equipment purchase on day 28 drags the
// running balance below -5000 for eight consecutive days until a loan drawdown
// on day 35 restores it. Weeks 0-4 carry a positive stress label, weeks 5-9 do not.
func StressedBusinessFixture(businessID string) []domain.Transaction {
	var txs []domain.Transaction
	for week := 0; week < 10; week++ {
		monday, rest := int64(1300), int64(-50)
		if week%2 == 1 {
			monday, rest = 300, -250
		}
		for dow := 0; dow < 7; dow++ {
			day := week*7 + dow
			if dow == 0 {
				txs = append(txs, DailyTx(businessID, day, monday, "card settlements"))
			} else {
				txs = append(txs, DailyTx(businessID, day, rest, "supplier payment"))
			}
			switch day {
			case 28:
				txs = append(txs, DailyTx(businessID, day, -8000, "equipment purchase"))
			case 35:
				txs = append(txs, DailyTx(businessID, day, 8000, "loan drawdown"))
			}
		}
	}
	return txs
}

// StableBusinessFixture generates ten weeks of uniformly positive daily inflows
func StableBusinessFixture(businessID string) []domain.Transaction {
	txs := make([]domain.Transaction, 0, 70)
	for day := 0; day < 70; day++ {
		txs = append(txs, DailyTx(businessID, day, 100, "daily sales"))
	}
	return txs
}

// WeeklyNetCash sums transaction amounts per fixture week (days since FixtureStart / 7)
func WeeklyNetCash(txs []domain.Transaction) map[int]float64 {
	out := make(map[int]float64)
	for _, tx := range txs {
		week := int(tx.Date.Sub(FixtureStart).Hours()/24) / 7
		out[week] += tx.Amount.InexactFloat64()
	}
	return out
}
