// Package backend wires storage, attachments, the event bus and the ledger
// mirror from configuration.
package backend

import (
	"context"

	"dues/internal/amqp"
	"dues/internal/blob"
	"dues/internal/sheets"
	"dues/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything a process needs to build the services.
type BackendResult struct {
	Repos storage.Repositories
	Blobs blob.Store
	// AMQP is nil when AMQP_URL is empty or the broker was unreachable.
	AMQP *amqp.Client
	// Mirror is the Google Sheets mirror when configured, otherwise an
	// in-memory one.
	Mirror  sheets.LedgerMirror
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	BlobBackend string
	BlobDir     string
	BlobBaseURL string
	GCSBucket   string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
