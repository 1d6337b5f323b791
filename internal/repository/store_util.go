package repository

import (
	"fmt"
	"math"
	"time"

	"PriceSentinel/internal/domain/models"
)

func validObservation(symbol string, price float64, ts time.Time) error {
	if symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return fmt.Errorf("price %v not positive", price)
	}
	if ts.IsZero() {
		return fmt.Errorf("timestamp zero")
	}
	return nil
}

func validSignal(s models.Signal) error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if _, err := models.ParseSignalKind(string(s.Kind)); err != nil {
		return err
	}
	if math.IsNaN(s.ZScore) || math.IsInf(s.ZScore, 0) {
		return fmt.Errorf("z score %v not finite", s.ZScore)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp zero")
	}
	return nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
