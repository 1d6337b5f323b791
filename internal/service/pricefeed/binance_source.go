package pricefeed

import (
	"context"
	"fmt"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource reads the last traded price through the Binance spot REST API.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource builds a client against baseURL (binance.com, binance.us or a test server).
// Keys may be empty; the ticker endpoint is public.
func NewBinanceSource(baseURL, apiKey, apiSecret string) *BinanceSource {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, &models.FetchError{Symbol: symbol, Err: err}
	}
	for _, p := range prices {
		if p == nil || p.Symbol != symbol {
			continue
		}
		price, err := parseDecimal(p.Price)
		if err != nil {
			return 0, &models.FetchError{Symbol: symbol, Err: err}
		}
		return price, nil
	}
	return 0, &models.FetchError{Symbol: symbol, Err: fmt.Errorf("%w: symbol not in ticker response", models.ErrMissingPrice)}
}

var _ repository.PriceSource = (*BinanceSource)(nil)
