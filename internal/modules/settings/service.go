package settings

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/divvy/internal/domain"
)

// Setting keys.
const (
	KeyMode            = "mode"
	KeyAPIKey          = "api_key"
	KeyBaseCurrency    = "base_currency"
	KeyRefreshInterval = "refresh_interval_minutes"
)

// Defaults applied when neither the settings table nor the environment
// provides a value.
const (
	DefaultBaseCurrency    = "GBP"
	DefaultRefreshInterval = 60 * time.Minute
)

// Service exposes typed access to settings. The refresh scheduler calls
// Current exactly once per cycle, so a settings change never affects a cycle
// already in flight.
type Service struct {
	repo           *Repository
	fallbackAPIKey string
	fallbackMode   string
	log            zerolog.Logger
}

// NewService creates a settings service. fallbackAPIKey and fallbackMode
// come from the environment and are used when nothing is stored.
func NewService(repo *Repository, fallbackAPIKey, fallbackMode string, log zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		fallbackAPIKey: fallbackAPIKey,
		fallbackMode:   fallbackMode,
		log:            log.With().Str("service", "settings").Logger(),
	}
}

// Current returns the active settings, falling back to environment values
// and defaults for anything unset.
func (s *Service) Current() (domain.Settings, error) {
	out := domain.Settings{
		Mode:            domain.ParseMode(s.fallbackMode),
		APIKey:          s.fallbackAPIKey,
		BaseCurrency:    DefaultBaseCurrency,
		RefreshInterval: DefaultRefreshInterval,
	}

	stored, err := s.repo.GetAll()
	if err != nil {
		return out, fmt.Errorf("failed to load settings: %w", err)
	}

	if v, ok := stored[KeyMode]; ok && v != "" {
		out.Mode = domain.ParseMode(v)
	}
	if v, ok := stored[KeyAPIKey]; ok && v != "" {
		out.APIKey = v
	}
	if v, ok := stored[KeyBaseCurrency]; ok && v != "" {
		out.BaseCurrency = v
	}
	if v, ok := stored[KeyRefreshInterval]; ok && v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			s.log.Warn().Str("value", v).Msg("Ignoring invalid refresh interval setting")
		} else {
			out.RefreshInterval = time.Duration(minutes) * time.Minute
		}
	}

	return out, nil
}

// Update stores the provided settings. Empty strings leave the stored value
// untouched so the API key does not have to be re-entered on every change.
func (s *Service) Update(mode, apiKey, baseCurrency string, refreshIntervalMinutes int) error {
	if mode != "" {
		if err := s.repo.Set(KeyMode, string(domain.ParseMode(mode))); err != nil {
			return err
		}
	}
	if apiKey != "" {
		if err := s.repo.Set(KeyAPIKey, apiKey); err != nil {
			return err
		}
	}
	if baseCurrency != "" {
		if err := s.repo.Set(KeyBaseCurrency, baseCurrency); err != nil {
			return err
		}
	}
	if refreshIntervalMinutes > 0 {
		if err := s.repo.Set(KeyRefreshInterval, strconv.Itoa(refreshIntervalMinutes)); err != nil {
			return err
		}
	}

	s.log.Info().Str("mode", mode).Msg("Settings updated")
	return nil
}
