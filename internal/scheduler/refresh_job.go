package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/divvy/internal/domain"
	"github.com/aristath/divvy/internal/modules/analytics"
	"github.com/aristath/divvy/internal/utils"
)

// State is the refresh job's current phase.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateComputing  State = "computing"
	StatePublishing State = "publishing"
)

// cycleTimeout bounds a single refresh cycle end to end.
const cycleTimeout = 5 * time.Minute

// SettingsSource provides the settings consumed at the start of each cycle.
type SettingsSource interface {
	Current() (domain.Settings, error)
}

// PayoutStore is the payout history persistence the refresh cycle needs.
type PayoutStore interface {
	UpsertBatch(records []domain.PayoutRecord) (int, error)
	All() ([]domain.PayoutRecord, error)
}

// SnapshotSink receives the finished snapshot: Publish swaps it into the
// live cache, Persist stores it for warm starts.
type SnapshotSink interface {
	Publish(snap *domain.Snapshot)
	Persist(snap *domain.Snapshot) error
}

// CycleInfo describes the most recently finished refresh cycle.
type CycleInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// RefreshJob runs the full fetch-compute-publish cycle. Cycles never
// overlap: the cron tick, the manual trigger and the startup run all
// serialize on the same mutex. A failed cycle leaves the previously
// published snapshot in place; the next tick retries.
type RefreshJob struct {
	settings  SettingsSource
	broker    domain.BrokerClient
	forecasts domain.ForecastProvider
	payouts   PayoutStore
	calc      *analytics.Calculator
	sink      SnapshotSink
	log       zerolog.Logger

	mu      sync.Mutex // serializes cycles
	trigger chan struct{}

	stateMu     sync.Mutex
	state       State
	lastCycle   *CycleInfo
	lastSuccess time.Time
}

// NewRefreshJob wires the refresh cycle together.
func NewRefreshJob(
	settings SettingsSource,
	broker domain.BrokerClient,
	forecasts domain.ForecastProvider,
	payouts PayoutStore,
	calc *analytics.Calculator,
	sink SnapshotSink,
	log zerolog.Logger,
) *RefreshJob {
	return &RefreshJob{
		settings:  settings,
		broker:    broker,
		forecasts: forecasts,
		payouts:   payouts,
		calc:      calc,
		sink:      sink,
		log:       log.With().Str("component", "refresh_job").Logger(),
		trigger:   make(chan struct{}, 1),
		state:     StateIdle,
	}
}

// Name implements Job.
func (j *RefreshJob) Name() string {
	return "portfolio_refresh"
}

// Run implements Job. The cron schedule ticks every minute; the job itself
// decides whether the configured interval has elapsed, so interval changes
// in settings take effect without re-registering the job.
func (j *RefreshJob) Run() error {
	settings, err := j.settings.Current()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	j.stateMu.Lock()
	due := j.lastSuccess.IsZero() || time.Since(j.lastSuccess) >= settings.RefreshInterval
	j.stateMu.Unlock()

	if !due {
		return nil
	}
	return j.RunNow()
}

// RunNow executes one refresh cycle immediately, regardless of the interval.
func (j *RefreshJob) RunNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()
	return j.runCycle(ctx)
}

// TriggerNow enqueues an out-of-schedule refresh without blocking the
// caller. A trigger arriving while one is already pending coalesces with it.
func (j *RefreshJob) TriggerNow() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// StartWorker consumes manual triggers until ctx is cancelled.
func (j *RefreshJob) StartWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-j.trigger:
				if err := j.RunNow(); err != nil {
					j.log.Error().Err(err).Msg("Triggered refresh failed")
				}
			}
		}
	}()
}

// Status returns the current phase and the last finished cycle, if any.
func (j *RefreshJob) Status() (State, *CycleInfo) {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()

	state := j.state
	if j.lastCycle == nil {
		return state, nil
	}
	info := *j.lastCycle
	return state, &info
}

func (j *RefreshJob) setState(s State) {
	j.stateMu.Lock()
	j.state = s
	j.stateMu.Unlock()
}

func (j *RefreshJob) finishCycle(info CycleInfo, err error) {
	info.FinishedAt = time.Now().UTC()
	info.Success = err == nil
	if err != nil {
		info.Error = err.Error()
	}

	j.stateMu.Lock()
	j.state = StateIdle
	j.lastCycle = &info
	if err == nil {
		j.lastSuccess = info.FinishedAt
	}
	j.stateMu.Unlock()
}

func (j *RefreshJob) runCycle(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := CycleInfo{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := j.log.With().Str("cycle_id", info.ID).Logger()
	defer utils.OperationTimer("refresh_cycle", log)()

	settings, err := j.settings.Current()
	if err != nil {
		err = fmt.Errorf("failed to read settings: %w", err)
		j.finishCycle(info, err)
		return err
	}

	j.setState(StateFetching)

	positions, err := j.broker.GetOpenPositions(ctx, settings)
	if err != nil {
		err = fmt.Errorf("position fetch failed: %w", err)
		log.Error().Err(err).Msg("Refresh cycle aborted, previous snapshot retained")
		j.finishCycle(info, err)
		return err
	}

	cash, cashErr := j.broker.GetAccountCash(ctx, settings)
	if cashErr != nil {
		log.Warn().Err(cashErr).Msg("Account cash unavailable, totals fall back to position sums")
		cash = nil
	}

	fetched, err := j.broker.GetDividendHistory(ctx, settings)
	if err != nil {
		err = fmt.Errorf("dividend history fetch failed: %w", err)
		log.Error().Err(err).Msg("Refresh cycle aborted, previous snapshot retained")
		j.finishCycle(info, err)
		return err
	}

	payouts := j.mergePayouts(log, fetched)
	forecasts := j.fetchForecasts(ctx, log, positions)

	j.setState(StateComputing)

	snap := j.calc.BuildSnapshot(analytics.Inputs{
		Positions:    positions,
		Payouts:      payouts,
		Forecasts:    forecasts,
		Cash:         cash,
		Mode:         settings.Mode,
		BaseCurrency: settings.BaseCurrency,
		Now:          time.Now().UTC(),
	})

	j.setState(StatePublishing)

	j.sink.Publish(snap)
	if err := j.sink.Persist(snap); err != nil {
		log.Warn().Err(err).Msg("Failed to persist snapshot for warm start")
	}

	log.Info().
		Int("positions", len(positions)).
		Int("payouts", len(payouts)).
		Int("forecasts", len(forecasts)).
		Msg("Refresh cycle published")

	j.finishCycle(info, nil)
	return nil
}

// mergePayouts stores the freshly fetched records (duplicates collapse on the
// identity key) and returns the full history. Storage failures degrade to
// this cycle's fetched records so a database hiccup does not abort the cycle.
func (j *RefreshJob) mergePayouts(log zerolog.Logger, fetched []domain.PayoutRecord) []domain.PayoutRecord {
	if _, err := j.payouts.UpsertBatch(fetched); err != nil {
		log.Warn().Err(err).Msg("Failed to store payout records")
		return fetched
	}

	all, err := j.payouts.All()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load payout history")
		return fetched
	}
	return all
}

// fetchForecasts resolves quote symbols for the held tickers and re-keys the
// provider's response by broker ticker. Forecast failure is never fatal: the
// snapshot just carries no projections this cycle.
func (j *RefreshJob) fetchForecasts(ctx context.Context, log zerolog.Logger, positions []domain.Position) map[string]domain.Forecast {
	if len(positions) == 0 {
		return nil
	}

	symbolByTicker := make(map[string]string, len(positions))
	symbols := make([]string, 0, len(positions))
	seen := make(map[string]bool, len(positions))
	for _, pos := range positions {
		symbol := utils.QuoteSymbol(pos.Ticker)
		symbolByTicker[pos.Ticker] = symbol
		if !seen[symbol] {
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}

	bySymbol, err := j.forecasts.GetForecasts(ctx, symbols)
	if err != nil {
		log.Warn().Err(err).Msg("Forecasts unavailable, skipping projections this cycle")
		return nil
	}

	out := make(map[string]domain.Forecast, len(bySymbol))
	for ticker, symbol := range symbolByTicker {
		if fc, ok := bySymbol[symbol]; ok {
			fc.Ticker = ticker
			out[ticker] = fc
		}
	}
	return out
}
