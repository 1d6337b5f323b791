package models

import (
	"fmt"
	"time"
)

// SignalKind classifies the direction of an anomalous move.
type SignalKind string

const (
	SignalSpike SignalKind = "Spike"
	SignalDrop  SignalKind = "Drop"
)

// KindForZ returns Spike for positive z and Drop otherwise.
func KindForZ(z float64) SignalKind {
	if z > 0 {
		return SignalSpike
	}
	return SignalDrop
}

// ParseSignalKind accepts the persisted/wire representation.
func ParseSignalKind(s string) (SignalKind, error) {
	switch SignalKind(s) {
	case SignalSpike, SignalDrop:
		return SignalKind(s), nil
	default:
		return "", fmt.Errorf("unknown signal kind %q", s)
	}
}

// Observation is a single stored price sample.
type Observation struct {
	ID        int64
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Signal is a persisted anomaly detected on an observation.
type Signal struct {
	ID        int64
	Symbol    string
	Price     float64
	ZScore    float64
	Kind      SignalKind
	Timestamp time.Time
}

// ObservationQuery pages through stored observations in id order.
type ObservationQuery struct {
	Symbol  string // empty means all symbols
	AfterID int64
	Limit   int
}
