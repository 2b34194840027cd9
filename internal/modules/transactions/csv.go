package transactions

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/utils"
	"github.com/shopspring/decimal"
)

// RequiredColumns are the columns every ingested file must carry
var RequiredColumns = []string{"business_id", "date", "description", "amount"}

// ParseReport summarises what a parse kept and dropped
type ParseReport struct {
	Rows           int `json:"rows"`
	Accepted       int `json:"accepted"`
	InvalidDates   int `json:"invalid_dates"`
	InvalidAmounts int `json:"invalid_amounts"`
	MissingIDs     int `json:"missing_business_ids"`
}

// ParseCSV reads a comma or tab separated transaction file.
//
// Header names are trimmed and lower-cased. A file missing a required column
// fails with a *domain.SchemaError. Rows whose date or amount cannot be parsed,
// or that have no business_id, are dropped and counted in the report.
func ParseCSV(r io.Reader) ([]domain.Transaction, ParseReport, error) {
	var report ParseReport

	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.Comma = detectSeparator(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, &domain.SchemaError{Missing: append([]string(nil), RequiredColumns...)}
	}
	if err != nil {
		return nil, report, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	found := make([]string, 0, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		index[name] = i
		found = append(found, name)
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(found)
		return nil, report, &domain.SchemaError{Missing: missing, Found: found}
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var txs []domain.Transaction
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("failed to read row %d: %w", report.Rows+2, err)
		}
		report.Rows++

		businessID := field(record, "business_id")
		if businessID == "" {
			report.MissingIDs++
			continue
		}
		date, err := utils.ParseDate(field(record, "date"))
		if err != nil {
			report.InvalidDates++
			continue
		}
		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil {
			report.InvalidAmounts++
			continue
		}

		txs = append(txs, domain.Transaction{
			BusinessID:  businessID,
			Date:        date,
			Description: field(record, "description"),
			Amount:      amount,
		})
	}

	report.Accepted = len(txs)
	return txs, report, nil
}

// detectSeparator peeks at the header line: tabs without commas mean TSV
func detectSeparator(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := peek
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		line = peek[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return '\t'
	}
	return ','
}
