package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ordini/internal/core"
	applog "ordini/internal/log"
	ports "ordini/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config names the spreadsheet and the sheets holding products and prices.
type Config struct {
	SpreadsheetID string
	ProductsSheet string // default "Products"
	PricesSheet   string // default "Prices"

	// Service account credentials; when these and the OAuth client are
	// empty, GOOGLE_APPLICATION_CREDENTIALS is used.
	CredentialsJSON string
	CredentialsFile string

	// OAuth user credentials, used when no service account is configured.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	productsRange string
	pricesRange   string
}

var _ ports.CatalogSource = (*Client)(nil)

// New creates a read-only Sheets client for the product and price tables.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		productsRange: sheetRange(cfg.ProductsSheet, "Products", "A:Z"),
		pricesRange:   sheetRange(cfg.PricesSheet, "Prices", "A:Z"),
	}, nil
}

// newSheetsService initializes a read-only Sheets Service. Service account
// credentials win; OAuth user credentials are the fallback.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func clientOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	credentialsJSON, err := readSecret(cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	if credentialsJSON == nil && cfg.OAuthClientJSON == "" && cfg.OAuthClientFile == "" {
		if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
			if credentialsJSON, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("read service account file: %w", err)
			}
		}
	}

	if credentialsJSON != nil {
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			applog.FieldComponent, applog.ComponentSheets,
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsReadonlyScope)
		return []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}, nil
	}

	ts, err := oauthTokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Creating Google Sheets service with OAuth user token",
		applog.FieldComponent, applog.ComponentSheets,
		"scope", gsheet.SpreadsheetsReadonlyScope)
	return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
}

// oauthTokenSource builds a refreshing token source from an OAuth client
// and a token saved by cmd/oauth-init.
func oauthTokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_CLIENT_JSON/FILE)")
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return oauthCfg.TokenSource(ctx, &tok), nil
}

// readSecret returns inline when set, else the contents of path, else nil.
func readSecret(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// ListProducts implements sheets.ProductSource
func (c *Client) ListProducts(ctx context.Context) ([]core.Product, error) {
	values, err := c.read(ctx, c.productsRange)
	if err != nil {
		return nil, err
	}
	products, err := parseProducts(values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.productsRange, err)
	}
	return products, nil
}

// ListPrices implements sheets.PriceSource
func (c *Client) ListPrices(ctx context.Context) ([]core.PriceEntry, error) {
	values, err := c.read(ctx, c.pricesRange)
	if err != nil {
		return nil, err
	}
	prices, skipped, err := parsePrices(values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.pricesRange, err)
	}
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped price rows with unreadable price",
			applog.FieldComponent, applog.ComponentSheets,
			"range", c.pricesRange,
			"skipped", skipped)
	}
	return prices, nil
}

func (c *Client) read(ctx context.Context, rng string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// sheetRange returns "<sheet>!<cols>", quoting sheet names that contain spaces.
func sheetRange(name, fallback, cols string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if strings.ContainsAny(name, " -()") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return fmt.Sprintf("%s!%s", name, cols)
}
