package pricefeed

import (
	"fmt"
	"math"
	"strings"

	"PriceSentinel/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ParsePrice extracts a strictly positive, finite price at path from an untrusted JSON body.
// Both "123.45" and 123.45 are accepted.
func ParsePrice(body []byte, path string) (float64, error) {
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("%w: response is not valid json", models.ErrInvalidPrice)
	}
	r := gjson.GetBytes(body, path)
	if !r.Exists() || r.Type == gjson.Null {
		return 0, models.ErrMissingPrice
	}

	var raw string
	switch r.Type {
	case gjson.String:
		raw = strings.TrimSpace(r.Str)
	case gjson.Number:
		raw = r.Raw
	default:
		return 0, fmt.Errorf("%w: %s is %s", models.ErrInvalidPrice, path, r.Type)
	}
	return parseDecimal(raw)
}

func parseDecimal(raw string) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidPrice, raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s not positive", models.ErrInvalidPrice, d.String())
	}
	f, _ := d.Float64()
	if f <= 0 || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q out of range", models.ErrInvalidPrice, raw)
	}
	return f, nil
}
