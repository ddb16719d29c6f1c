package google

import (
	"fmt"
	"strings"

	"dues/internal/core"
	ports "dues/internal/sheets"
)

// parseRows converts a values matrix (as returned by Sheets API) into the
// ledger rows dated in month. Header and malformed rows are skipped.
func parseRows(values [][]any, month core.MonthKey) []ports.LedgerRow {
	var out []ports.LedgerRow
	for _, raw := range values {
		row, ok := parseRow(toStrings(raw))
		if !ok {
			continue
		}
		if core.MonthKeyOf(row.Date.Time) != month {
			continue
		}
		out = append(out, row)
	}
	return out
}

func parseRow(cols []string) (ports.LedgerRow, bool) {
	if len(cols) < 8 {
		return ports.LedgerRow{}, false
	}
	date, err := core.ParseDate(cols[0])
	if err != nil {
		return ports.LedgerRow{}, false
	}
	amount, err := core.ParseMoney(cols[2])
	if err != nil {
		return ports.LedgerRow{}, false
	}
	row := ports.LedgerRow{
		Date:          date,
		Description:   cols[1],
		Amount:        amount,
		Type:          core.TransactionType(strings.ToLower(cols[3])),
		AccountID:     cols[4],
		CategoryID:    cols[5],
		Action:        cols[6],
		TransactionID: cols[7],
	}
	if row.Validate() != nil {
		return ports.LedgerRow{}, false
	}
	return row, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
