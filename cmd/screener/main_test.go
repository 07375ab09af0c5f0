package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cryptoLedger/internal/screener"
)

func TestResultRows(t *testing.T) {
	rows := resultRows([]screener.Result{
		{Symbol: "SOLPHP", LastClose: 200, MALong: 100.5, MAMid: 125.5, MAShort: 175.5},
	})
	assert.Equal(t, [][]string{{"SOLPHP", "200", "100.5", "125.5", "175.5"}}, rows)
	assert.Len(t, resultsHeader, len(rows[0]))
	assert.Empty(t, resultRows(nil))
}
