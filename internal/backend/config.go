package backend

import (
	"fmt"

	"ordini/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.CatalogBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.CatalogBackend)
	}

	return Config{
		Type: backendType,

		// Google Sheets configuration
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleProductsSheet:      appConfig.GoogleProductsSheet,
		GooglePricesSheet:        appConfig.GooglePricesSheet,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleOAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
		GoogleOAuthClientFile:    appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
		GoogleOAuthTokenFile:     appConfig.GoogleOAuthTokenFile,

		DataDirectory: appConfig.DataDirectory,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data" when empty
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
