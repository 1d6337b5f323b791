package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignalEvent is the JSON object pushed to real-time subscribers and to Kafka.
type SignalEvent struct {
	Timestamp string  `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ZScore    float64 `json:"z_score"`
	Type      string  `json:"type"`
}

// NewSignalEvent projects a signal onto its wire form.
func NewSignalEvent(s Signal) SignalEvent {
	return SignalEvent{
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
		Symbol:    s.Symbol,
		Price:     s.Price,
		ZScore:    s.ZScore,
		Type:      string(s.Kind),
	}
}

// Marshal encodes the event as a single JSON object.
func (e SignalEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Signal converts a decoded wire event back into a signal (ID is not carried on the wire).
func (e SignalEvent) Signal() (Signal, error) {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return Signal{}, fmt.Errorf("signal event timestamp: %w", err)
	}
	kind, err := ParseSignalKind(e.Type)
	if err != nil {
		return Signal{}, err
	}
	if e.Symbol == "" {
		return Signal{}, fmt.Errorf("signal event symbol empty")
	}
	return Signal{
		Symbol:    e.Symbol,
		Price:     e.Price,
		ZScore:    e.ZScore,
		Kind:      kind,
		Timestamp: ts.UTC(),
	}, nil
}
