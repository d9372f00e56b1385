package domain

import "context"

// BrokerClient is the broker-agnostic contract for the brokerage data source.
// Implementations translate transport-level failures into the error taxonomy
// in errors.go; they never panic on bad upstream data.
type BrokerClient interface {
	// GetOpenPositions fetches currently held positions. Positions with zero
	// quantity are filtered out by the implementation.
	GetOpenPositions(ctx context.Context, settings Settings) ([]Position, error)

	// GetAccountCash fetches the account value summary.
	GetAccountCash(ctx context.Context, settings Settings) (*AccountCash, error)

	// GetDividendHistory fetches historical dividend payout records,
	// following pagination until exhausted.
	GetDividendHistory(ctx context.Context, settings Settings) ([]PayoutRecord, error)
}

// ForecastProvider supplies forward dividend estimates. Missing data for a
// ticker is not an error: the ticker is simply absent from the result map.
type ForecastProvider interface {
	// GetForecasts looks up forecasts for a batch of tickers. A batch-level
	// failure returns ErrForecastUnavailable; callers treat that as an empty
	// result, not as a fatal condition.
	GetForecasts(ctx context.Context, tickers []string) (map[string]Forecast, error)
}

// SnapshotReader is the read side of the snapshot cache, consumed by the
// HTTP layer. Read never blocks on an in-progress refresh and returns nil
// before the first publish.
type SnapshotReader interface {
	Read() *Snapshot
}
