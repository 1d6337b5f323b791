package pricefeed

import (
	"context"
	"net/http"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
	xhttp "PriceSentinel/pkg/http"
)

// HTTPSource polls a JSON endpoint shaped like {"symbol": "...", "price": "..."}.
type HTTPSource struct {
	client      *xhttp.Client
	url         string
	symbolParam string
	pricePath   string
}

func NewHTTPSource(client *xhttp.Client, url, symbolParam, pricePath string) *HTTPSource {
	if symbolParam == "" {
		symbolParam = "symbol"
	}
	if pricePath == "" {
		pricePath = "price"
	}
	return &HTTPSource{client: client, url: url, symbolParam: symbolParam, pricePath: pricePath}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	var body []byte
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      http.MethodGet,
		URL:         s.url,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: map[string][]string{s.symbolParam: {symbol}},
	}, &body)
	if err != nil {
		return 0, &models.FetchError{Symbol: symbol, Err: err}
	}

	price, err := ParsePrice(body, s.pricePath)
	if err != nil {
		return 0, &models.FetchError{Symbol: symbol, Err: err}
	}
	return price, nil
}

var _ repository.PriceSource = (*HTTPSource)(nil)
