package backend

import (
	"context"
	"errors"
	"fmt"

	"dues/internal/amqp"
	"dues/internal/blob"
	"dues/internal/log"
	"dues/internal/sheets"
	gsheet "dues/internal/sheets/google"
	sheetsmem "dues/internal/sheets/memory"
	"dues/internal/storage"
	"dues/internal/storage/memory"
	"dues/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. AMQP and the Sheets
// mirror are optional: failing to reach them is logged and the backend is
// returned without them.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repos   storage.Repositories
		cleanup []func() error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err := sqlite.New(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		repos = store.Repositories()
		cleanup = append(cleanup, store.Close)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repos = memory.New().Repositories()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	blobs, err := f.createBlobStore(ctx, config)
	if err != nil {
		closeAll(cleanup)
		return nil, err
	}

	res := &BackendResult{
		Repos:  repos,
		Blobs:  blobs,
		Mirror: f.createMirror(ctx, config),
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.LogSoftFailure(ctx, "Failed to initialize AMQP client, continuing without events", err, log.OpStartup, nil)
		} else {
			res.AMQP = client
			cleanup = append(cleanup, client.Close)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	res.Cleanup = func() error { return closeAll(cleanup) }
	return res, nil
}

func (f *DefaultFactory) createBlobStore(ctx context.Context, config Config) (blob.Store, error) {
	switch config.BlobBackend {
	case "disk":
		store, err := blob.NewDiskStore(config.BlobDir, config.BlobBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize disk blob store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized disk blob store", "dir", config.BlobDir)
		return store, nil
	case "gcs":
		creds, err := gsheet.LoadCredentials(config.GoogleServiceAccountJSON, config.GoogleServiceAccountFile)
		if err != nil {
			return nil, err
		}
		store, err := blob.NewGCSStore(ctx, config.GCSBucket, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS blob store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized GCS blob store", "bucket", config.GCSBucket)
		return store, nil
	default:
		return blob.Unconfigured{}, nil
	}
}

func (f *DefaultFactory) createMirror(ctx context.Context, config Config) sheets.LedgerMirror {
	if config.GoogleSpreadsheetID == "" {
		return sheetsmem.New()
	}
	creds, err := gsheet.LoadCredentials(config.GoogleServiceAccountJSON, config.GoogleServiceAccountFile)
	if err == nil {
		var client *gsheet.Client
		client, err = gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: creds,
			Logger:          f.logger,
		})
		if err == nil {
			f.logger.InfoContext(ctx, "Initialized Google Sheets mirror", "sheet", config.GoogleSheetName)
			return client
		}
	}
	f.logger.LogSoftFailure(ctx, "Failed to initialize Google Sheets mirror, mirroring in memory", err, log.OpStartup, nil)
	return sheetsmem.New()
}

func closeAll(fns []func() error) error {
	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
