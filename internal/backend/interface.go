package backend

import (
	"context"

	"ordini/internal/sheets"
)

// Backend is the external catalog: the product and price tables.
type Backend interface {
	sheets.CatalogSource
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
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

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleProductsSheet      string
	GooglePricesSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
