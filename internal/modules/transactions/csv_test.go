package transactions

import (
	"strings"
	"testing"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV_Comma(t *testing.T) {
	in := "Business_ID , Date,Description,AMOUNT\n" +
		"B1,2023-01-02,Card settlements,1300.50\n" +
		"B1,2023-01-03,\"Rent, January\",-250\n"

	txs, report, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "B1", txs[0].BusinessID)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), txs[0].Date)
	assert.Equal(t, "1300.5", txs[0].Amount.String())
	assert.Equal(t, "Rent, January", txs[1].Description)
	assert.Equal(t, ParseReport{Rows: 2, Accepted: 2}, report)
}

func TestParseCSV_Tab(t *testing.T) {
	in := "business_id\tdate\tdescription\tamount\n" +
		"B2\t2023-02-01\tdaily sales\t100\n"

	txs, _, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "B2", txs[0].BusinessID)
	assert.Equal(t, "daily sales", txs[0].Description)
}

func TestParseCSV_MissingColumns(t *testing.T) {
	in := "business_id,amount,memo\nB1,10,x\n"

	_, _, err := ParseCSV(strings.NewReader(in))

	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"date", "description"}, schemaErr.Missing)
	assert.Equal(t, []string{"amount", "business_id", "memo"}, schemaErr.Found)
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestParseCSV_EmptyInput(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrSchema)
}

func TestParseCSV_DropsBadRows(t *testing.T) {
	in := "business_id,date,description,amount\n" +
		"B1,not-a-date,x,10\n" +
		"B1,2023-01-02,x,ten\n" +
		",2023-01-02,x,10\n" +
		"B1,2023-01-02,x,10\n"

	txs, report, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, ParseReport{Rows: 4, Accepted: 1, InvalidDates: 1, InvalidAmounts: 1, MissingIDs: 1}, report)
}

func TestParseCSV_ShortRowsAndBOM(t *testing.T) {
	in := "﻿business_id,date,description,amount\n" +
		"B1,2023-01-02\n" +
		"B1,2023-01-02,,5\n"

	txs, report, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "", txs[0].Description)
	assert.Equal(t, 1, report.InvalidAmounts)
}
