package trading212

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/divvy/internal/domain"
)

// BrokerAdapter adapts the Trading212 client to domain.BrokerClient.
// It owns the client internally and hands out only validated domain types.
type BrokerAdapter struct {
	client *Client
}

// NewBrokerAdapter creates a new Trading212 broker adapter.
func NewBrokerAdapter(log zerolog.Logger) *BrokerAdapter {
	return &BrokerAdapter{client: NewClient(log)}
}

// NewBrokerAdapterWithClient wraps an existing client (used by tests).
func NewBrokerAdapterWithClient(client *Client) *BrokerAdapter {
	return &BrokerAdapter{client: client}
}

// GetOpenPositions implements domain.BrokerClient.
func (a *BrokerAdapter) GetOpenPositions(ctx context.Context, settings domain.Settings) ([]domain.Position, error) {
	raw, err := a.client.GetOpenPositions(ctx, settings)
	if err != nil {
		return nil, err
	}
	return transformPositions(raw)
}

// GetAccountCash implements domain.BrokerClient.
func (a *BrokerAdapter) GetAccountCash(ctx context.Context, settings domain.Settings) (*domain.AccountCash, error) {
	raw, err := a.client.GetAccountCash(ctx, settings)
	if err != nil {
		return nil, err
	}
	return transformCash(raw)
}

// GetDividendHistory implements domain.BrokerClient.
func (a *BrokerAdapter) GetDividendHistory(ctx context.Context, settings domain.Settings) ([]domain.PayoutRecord, error) {
	raw, err := a.client.GetDividendHistory(ctx, settings)
	if err != nil {
		return nil, err
	}
	return transformDividends(raw)
}
