// Package trading212 provides a client for the Trading212 public API.
// The Demo and Live environments share the same API surface on different
// hosts; the host is chosen per call from the active settings so a mode
// change takes effect on the next refresh cycle without rebuilding clients.
package trading212

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/divvy/internal/domain"
)

const (
	liveBaseURL = "https://live.trading212.com"
	demoBaseURL = "https://demo.trading212.com"

	// historyPageLimit is the page size requested from the dividends
	// history endpoint.
	historyPageLimit = 50

	// maxHistoryPages bounds pagination so a misbehaving cursor can never
	// loop forever.
	maxHistoryPages = 200
)

// Client is a thin HTTP client for the Trading212 API.
type Client struct {
	httpClient *http.Client
	baseURLs   map[domain.Mode]string
	log        zerolog.Logger
}

// NewClient creates a new Trading212 client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURLs: map[domain.Mode]string{
			domain.ModeLive: liveBaseURL,
			domain.ModeDemo: demoBaseURL,
		},
		log: log.With().Str("client", "trading212").Logger(),
	}
}

// NewClientWithBaseURL creates a client pointed at a single base URL for
// both modes. Used by tests against httptest servers.
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURLs = map[domain.Mode]string{
		domain.ModeLive: baseURL,
		domain.ModeDemo: baseURL,
	}
	return c
}

// apiPosition mirrors one entry of GET /api/v0/equity/portfolio.
type apiPosition struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	CurrentPrice float64 `json:"currentPrice"`
	CurrencyCode string  `json:"currencyCode"`
}

// apiCash mirrors GET /api/v0/equity/account/cash.
type apiCash struct {
	Free     float64 `json:"free"`
	Invested float64 `json:"invested"`
	Total    float64 `json:"total"`
}

// apiDividend mirrors one item of GET /api/v0/history/dividends.
type apiDividend struct {
	PaidOn              string  `json:"paidOn"`
	ISIN                string  `json:"isin"`
	Ticker              string  `json:"ticker"`
	Name                string  `json:"name"`
	Quantity            float64 `json:"quantity"`
	GrossAmountPerShare float64 `json:"grossAmountPerShare"`
	Currency            string  `json:"currency"`
	GrossAmount         float64 `json:"grossAmount"`
	WithheldTax         float64 `json:"withheldTax"`
}

// apiDividendPage is one page of the paginated dividends endpoint.
type apiDividendPage struct {
	Items        []apiDividend `json:"items"`
	NextPagePath *string       `json:"nextPagePath"`
}

// GetOpenPositions fetches the raw open positions.
func (c *Client) GetOpenPositions(ctx context.Context, settings domain.Settings) ([]apiPosition, error) {
	var positions []apiPosition
	if err := c.getJSON(ctx, settings, "/api/v0/equity/portfolio", &positions); err != nil {
		return nil, err
	}
	c.log.Debug().Int("count", len(positions)).Msg("Fetched open positions")
	return positions, nil
}

// GetAccountCash fetches the raw account value summary.
func (c *Client) GetAccountCash(ctx context.Context, settings domain.Settings) (*apiCash, error) {
	var cash apiCash
	if err := c.getJSON(ctx, settings, "/api/v0/equity/account/cash", &cash); err != nil {
		return nil, err
	}
	return &cash, nil
}

// GetDividendHistory fetches all dividend history pages.
func (c *Client) GetDividendHistory(ctx context.Context, settings domain.Settings) ([]apiDividend, error) {
	path := fmt.Sprintf("/api/v0/history/dividends?limit=%d", historyPageLimit)

	var items []apiDividend
	for page := 0; page < maxHistoryPages; page++ {
		var pageData apiDividendPage
		if err := c.getJSON(ctx, settings, path, &pageData); err != nil {
			return nil, err
		}
		items = append(items, pageData.Items...)

		if pageData.NextPagePath == nil || *pageData.NextPagePath == "" {
			c.log.Debug().Int("count", len(items)).Int("pages", page+1).Msg("Fetched dividend history")
			return items, nil
		}
		path = *pageData.NextPagePath
	}

	return nil, fmt.Errorf("dividend history pagination exceeded %d pages: %w",
		maxHistoryPages, domain.ErrMalformedResponse)
}

// getJSON performs an authenticated GET and decodes the JSON response,
// translating failures into the domain error taxonomy.
func (c *Client) getJSON(ctx context.Context, settings domain.Settings, path string, into any) error {
	if settings.APIKey == "" {
		return fmt.Errorf("no API key configured: %w", domain.ErrAuthenticationFailed)
	}

	url := c.baseURLs[settings.Mode] + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", settings.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, domain.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %w", path, resp.StatusCode, domain.ErrAuthenticationFailed)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(body)).
			Msg("Unexpected API status")
		return fmt.Errorf("%s returned status %d: %w", path, resp.StatusCode, domain.ErrSourceUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, domain.ErrMalformedResponse)
	}
	return nil
}
