package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/divvy/internal/domain"
	"github.com/aristath/divvy/internal/scheduler"
)

// RefreshController is the scheduler surface the HTTP layer needs: a
// non-blocking trigger and the current cycle status.
type RefreshController interface {
	TriggerNow()
	Status() (scheduler.State, *scheduler.CycleInfo)
}

// SettingsService reads and updates the stored settings.
type SettingsService interface {
	Current() (domain.Settings, error)
	Update(mode, apiKey, baseCurrency string, refreshIntervalMinutes int) error
}

// Handlers serves the analytics API. Every data endpoint reads the snapshot
// cache; none of them ever waits on a refresh cycle.
type Handlers struct {
	snapshots domain.SnapshotReader
	refresh   RefreshController
	settings  SettingsService
	log       zerolog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(snapshots domain.SnapshotReader, refresh RefreshController, settings SettingsService, log zerolog.Logger) *Handlers {
	return &Handlers{
		snapshots: snapshots,
		refresh:   refresh,
		settings:  settings,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// HandleHealth handles health check requests
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "divvy",
	})
}

// HandlePortfolio returns positions and portfolio totals.
func (h *Handlers) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	response := map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"positions":   []domain.Position{},
		"totals":      domain.PortfolioTotals{},
	}
	if snap != nil {
		if snap.Positions != nil {
			response["positions"] = snap.Positions
		}
		response["totals"] = snap.Totals
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDividends returns per-ticker dividend summaries.
func (h *Handlers) HandleDividends(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	summaries := []domain.DividendSummary{}
	if snap != nil && snap.DividendSummaries != nil {
		summaries = snap.DividendSummaries
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"summaries":   summaries,
	})
}

// HandleUpcomingDividends returns projected next payouts.
func (h *Handlers) HandleUpcomingDividends(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	upcoming := []domain.UpcomingPayment{}
	if snap != nil && snap.UpcomingPayments != nil {
		upcoming = snap.UpcomingPayments
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"upcoming":    upcoming,
	})
}

// HandlePayouts returns the payout history, newest first.
func (h *Handlers) HandlePayouts(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	records := []domain.PayoutRecord{}
	totals := domain.PayoutTotals{}
	if snap != nil {
		if snap.PayoutRecords != nil {
			records = snap.PayoutRecords
		}
		totals = snap.PayoutTotals
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"payouts":     records,
		"totals":      totals,
	})
}

// HandlePayoutsByTicker returns per-ticker payout aggregates, largest gross
// first.
func (h *Handlers) HandlePayoutsByTicker(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	summaries := []domain.TickerPayoutSummary{}
	if snap != nil && len(snap.TickerSummaries) > 0 {
		summaries = make([]domain.TickerPayoutSummary, len(snap.TickerSummaries))
		copy(summaries, snap.TickerSummaries)
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].Gross.GreaterThan(summaries[j].Gross)
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"tickers":     summaries,
	})
}

// HandlePayoutsByMonth returns per-month payout aggregates in chronological
// order.
func (h *Handlers) HandlePayoutsByMonth(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.Read()

	summaries := []domain.MonthlyPayoutSummary{}
	if snap != nil && snap.MonthlySummaries != nil {
		summaries = snap.MonthlySummaries
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot_at": snapshotAt(snap),
		"months":      summaries,
	})
}

// HandleRefresh enqueues an out-of-schedule refresh and returns immediately.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual refresh triggered")
	h.refresh.TriggerNow()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "refresh queued",
	})
}

// HandleStatus returns scheduler state, last cycle info and snapshot age.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	state, lastCycle := h.refresh.Status()
	snap := h.snapshots.Read()

	response := map[string]interface{}{
		"state":       string(state),
		"last_cycle":  lastCycle,
		"snapshot_at": snapshotAt(snap),
	}
	if snap != nil {
		response["snapshot_age_seconds"] = int(time.Since(snap.GeneratedAt).Seconds())
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSettings returns the stored settings with the API key redacted.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read settings")
		h.writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}

	h.writeJSON(w, http.StatusOK, settingsResponse(settings))
}

// settingsUpdateRequest is the PUT /api/settings body. Empty fields keep
// the stored values.
type settingsUpdateRequest struct {
	Mode                   string `json:"mode"`
	APIKey                 string `json:"api_key"`
	BaseCurrency           string `json:"base_currency"`
	RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
}

// HandleUpdateSettings stores new settings and queues a refresh so they
// take effect without waiting for the next scheduled cycle.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Mode != "" && req.Mode != string(domain.ModeDemo) && req.Mode != string(domain.ModeLive) {
		h.writeError(w, http.StatusBadRequest, "mode must be \"demo\" or \"live\"")
		return
	}
	if req.RefreshIntervalMinutes < 0 {
		h.writeError(w, http.StatusBadRequest, "refresh_interval_minutes must be positive")
		return
	}

	if err := h.settings.Update(req.Mode, req.APIKey, req.BaseCurrency, req.RefreshIntervalMinutes); err != nil {
		h.log.Error().Err(err).Msg("Failed to update settings")
		h.writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	h.refresh.TriggerNow()

	settings, err := h.settings.Current()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to re-read settings")
		h.writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}

	h.writeJSON(w, http.StatusOK, settingsResponse(settings))
}

func settingsResponse(settings domain.Settings) map[string]interface{} {
	return map[string]interface{}{
		"mode":                     string(settings.Mode),
		"base_currency":            settings.BaseCurrency,
		"refresh_interval_minutes": int(settings.RefreshInterval.Minutes()),
		"api_key_set":              settings.APIKey != "",
	}
}

func snapshotAt(snap *domain.Snapshot) interface{} {
	if snap == nil {
		return nil
	}
	return snap.GeneratedAt.Format(time.RFC3339)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
