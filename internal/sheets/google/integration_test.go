//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"dues/internal/core"
	ports "dues/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	creds, err := LoadCredentials(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"), os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if err != nil || creds == nil {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		CredentialsJSON: creds,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	today := core.DateOf(time.Now())
	id := "it-" + time.Now().Format("150405.000")
	row := ports.RowFromTransaction(core.Transaction{
		ID: id, Description: "Integration row", Amount: core.Cents(123), Date: today,
		Type: core.Expense, AccountID: "test", CategoryID: "test",
	}, "create")

	ref, err := client.AppendRow(ctx, row)
	if err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	t.Logf("Appended %s", ref)

	rows, err := client.ListRows(ctx, core.MonthKeyOf(today.Time))
	if err != nil {
		t.Fatalf("ListRows() error = %v", err)
	}
	for _, r := range rows {
		if r.TransactionID == id {
			return
		}
	}
	t.Errorf("row %s not found after append", id)
}
