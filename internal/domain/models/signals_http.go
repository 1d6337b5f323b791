package models

// Requests for the read API. Defined in domain for consistency and reuse.

type ListPricesRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"omitempty,max=32"`
	AfterID int64  `query:"after_id" json:"after_id" validate:"gte=0"`
	Limit   int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type ListSignalsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=500"`
}

// PriceDTO is the read API projection of an observation.
type PriceDTO struct {
	ID        int64   `json:"id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// SignalDTO is the read API projection of a signal.
type SignalDTO struct {
	ID        int64   `json:"id"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ZScore    float64 `json:"z_score"`
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
}
