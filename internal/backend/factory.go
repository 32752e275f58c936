package backend

import (
	"context"
	"fmt"

	applog "ordini/internal/log"
	gsheet "ordini/internal/sheets/google"
	"ordini/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		ProductsSheet:   config.GoogleProductsSheet,
		PricesSheet:     config.GooglePricesSheet,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		OAuthClientJSON: config.GoogleOAuthClientJSON,
		OAuthClientFile: config.GoogleOAuthClientFile,
		OAuthTokenJSON:  config.GoogleOAuthTokenJSON,
		OAuthTokenFile:  config.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend",
		"products_sheet", config.GoogleProductsSheet,
		"prices_sheet", config.GooglePricesSheet)

	return &BackendResult{
		Backend: cli,
		Cleanup: nil, // No cleanup needed for sheets backend
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory catalog: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Backend: store,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}
