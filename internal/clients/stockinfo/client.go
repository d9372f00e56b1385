// Package stockinfo looks up forward dividend estimates through the
// yfinance helper script (scripts/stock_info.py). The helper is a separate
// process: any failure to spawn it, a timeout, a non-zero exit or unusable
// output all degrade to "no forecast data". The refresh cycle carries on
// without projections rather than failing.
package stockinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/divvy/internal/domain"
)

const (
	// cacheTTL keeps forecasts warm across manual refreshes; forward
	// dividend estimates move slowly.
	cacheTTL = 12 * time.Hour

	// runTimeout bounds one helper invocation.
	runTimeout = 90 * time.Second
)

// runFunc executes the helper and returns its stdout. Swappable in tests.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Client invokes the stock-info helper and caches its answers.
type Client struct {
	pythonBin  string
	scriptPath string
	cache      *gocache.Cache
	run        runFunc
	log        zerolog.Logger
}

// rawInfo mirrors one symbol entry of the helper's JSON output.
type rawInfo struct {
	DividendRate       *float64 `json:"dividendRate"`
	DividendYield      *float64 `json:"dividendYield"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	Currency           string   `json:"currency"`
	ExDividendDate     *int64   `json:"exDividendDate"`
	Error              string   `json:"error"`
}

// NewClient creates a stock-info client.
func NewClient(pythonBin, scriptPath string, log zerolog.Logger) *Client {
	return &Client{
		pythonBin:  pythonBin,
		scriptPath: scriptPath,
		cache:      gocache.New(cacheTTL, 30*time.Minute),
		run:        runHelper,
		log:        log.With().Str("client", "stockinfo").Logger(),
	}
}

// GetForecasts implements domain.ForecastProvider. Tickers without usable
// forecast data are simply absent from the result map.
func (c *Client) GetForecasts(ctx context.Context, tickers []string) (map[string]domain.Forecast, error) {
	result := make(map[string]domain.Forecast, len(tickers))

	var missing []string
	for _, ticker := range tickers {
		if cached, ok := c.cache.Get(ticker); ok {
			result[ticker] = cached.(domain.Forecast)
			continue
		}
		missing = append(missing, ticker)
	}
	if len(missing) == 0 {
		return result, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	out, err := c.run(runCtx, c.pythonBin, c.scriptPath, strings.Join(missing, ","))
	if err != nil {
		c.log.Warn().Err(err).Int("tickers", len(missing)).Msg("Stock-info helper failed")
		return result, fmt.Errorf("stock-info helper: %w", domain.ErrForecastUnavailable)
	}

	var parsed map[string]rawInfo
	if err := json.Unmarshal(out, &parsed); err != nil {
		c.log.Warn().Err(err).Msg("Stock-info helper produced unusable output")
		return result, fmt.Errorf("stock-info output: %w", domain.ErrForecastUnavailable)
	}

	for _, ticker := range missing {
		info, ok := parsed[ticker]
		if !ok || info.Error != "" {
			c.log.Debug().Str("ticker", ticker).Str("error", info.Error).Msg("No forecast data")
			continue
		}
		forecast, ok := buildForecast(ticker, info)
		if !ok {
			c.log.Debug().Str("ticker", ticker).Msg("No dividend rate or yield reported")
			continue
		}
		c.cache.Set(ticker, forecast, gocache.DefaultExpiration)
		result[ticker] = forecast
	}

	return result, nil
}

// buildForecast derives a per-share estimate from the helper output.
// dividendRate is preferred; when only a yield is known, the per-share
// amount is reconstructed from the market price.
func buildForecast(ticker string, info rawInfo) (domain.Forecast, bool) {
	var perShare decimal.Decimal
	switch {
	case info.DividendRate != nil && *info.DividendRate > 0:
		perShare = decimal.NewFromFloat(*info.DividendRate)
	case info.DividendYield != nil && info.RegularMarketPrice != nil && *info.DividendYield > 0:
		perShare = decimal.NewFromFloat(*info.DividendYield).
			Mul(decimal.NewFromFloat(*info.RegularMarketPrice)).
			Div(decimal.NewFromInt(100))
	default:
		return domain.Forecast{}, false
	}

	currency := info.Currency
	if currency == "GBp" {
		// London quotes arrive in pence.
		perShare = perShare.Div(decimal.NewFromInt(100))
		currency = "GBP"
	}

	forecast := domain.Forecast{
		Ticker:           ticker,
		DividendPerShare: perShare,
		Currency:         currency,
	}
	if info.ExDividendDate != nil {
		t := time.Unix(*info.ExDividendDate, 0).UTC()
		forecast.ExDividendDate = &t
	}
	return forecast, true
}

// runHelper is the production runFunc.
func runHelper(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
