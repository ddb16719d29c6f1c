package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"dues/internal/core"
	"dues/internal/log"
	ports "dues/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 2 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the mirror sheet name without year; rows land in
	// "<year> <base>" for the year of the transaction date.
	sheetBase string
	logger    *log.Logger

	// Row count cache so consecutive appends skip the dimension read.
	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.LedgerMirror = (*Client)(nil)
	_ ports.RowLister    = (*Client)(nil)
)

// Options configures New. ClientOptions are appended after the credentials
// and are mainly useful to point the client at a fake endpoint.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON []byte
	RowCacheTTL     time.Duration
	ClientOptions   []goption.ClientOption
	Logger          *log.Logger
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Ledger"
	}
	ttl := opts.RowCacheTTL
	if ttl <= 0 {
		ttl = defaultRowCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetBase:          base,
		logger:             logger.WithComponent(log.ComponentSheets),
		cacheValidDuration: ttl,
	}, nil
}

func newSheetsService(ctx context.Context, credentialsJSON []byte, extra ...goption.ClientOption) (*gsheet.Service, error) {
	opts := make([]goption.ClientOption, 0, len(extra)+2)
	if len(credentialsJSON) > 0 {
		opts = append(opts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	} else if len(extra) == 0 {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	opts = append(opts, extra...)

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// LoadCredentials resolves service account credentials from inline JSON, a
// file path, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)
	if inlineJSON == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

// AppendRow writes row below the last used row of the year's mirror sheet.
func (c *Client) AppendRow(ctx context.Context, row ports.LedgerRow) (string, error) {
	if err := row.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(c.sheetBase, row.Date.Year())
	count, err := c.rowCount(ctx, sheet)
	if err != nil {
		return "", err
	}
	nextRow := count + 1

	rng := fmt.Sprintf("%s!A%d:H%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{row.Values()}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	c.mu.Lock()
	if c.cachedSheet == sheet {
		c.cachedRowCount = nextRow
	}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Mirrored ledger row",
		log.FieldTransactionID, row.TransactionID,
		log.FieldAction, row.Action,
		"range", rng)
	return rng, nil
}

// rowCount returns the number of used rows in sheet, from cache when fresh.
func (c *Client) rowCount(ctx context.Context, sheet string) (int, error) {
	c.mu.Lock()
	if c.cachedSheet == sheet && time.Now().Before(c.cacheExpiresAt) {
		n := c.cachedRowCount
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}

	c.mu.Lock()
	c.cachedSheet = sheet
	c.cachedRowCount = len(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return len(resp.Values), nil
}

// InvalidateRowCache forces the next append to re-read the sheet size.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

// ListRows returns the mirrored rows dated in month. Rows that do not parse
// are skipped.
func (c *Client) ListRows(ctx context.Context, month core.MonthKey) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if !month.Valid() {
		return nil, fmt.Errorf("invalid month: %q", month)
	}
	sheet := yearPrefixedName(c.sheetBase, month.Start().Year())
	rng := fmt.Sprintf("%s!A:H", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(resp.Values, month), nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
