package analytics

import (
	"math"

	"PriceSentinel/internal/domain/models"
	domsvc "PriceSentinel/internal/domain/service"
)

const (
	DefaultWindowSize = 20
	DefaultThreshold  = 2.0
)

// ZScoreEvaluator runs the rolling z-score test over the newest Window observations.
type ZScoreEvaluator struct {
	Window    int
	Threshold float64
}

// NewZScoreEvaluator falls back to the defaults for non-positive arguments.
func NewZScoreEvaluator(window int, threshold float64) *ZScoreEvaluator {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &ZScoreEvaluator{Window: window, Threshold: threshold}
}

func (e *ZScoreEvaluator) WindowSize() int { return e.Window }

func (e *ZScoreEvaluator) Evaluate(window []models.Observation) models.Evaluation {
	return EvaluateWindow(window, e.Window, e.Threshold)
}

// Evaluate runs the test with the default window size.
func Evaluate(window []models.Observation, threshold float64) models.Evaluation {
	return EvaluateWindow(window, DefaultWindowSize, threshold)
}

// EvaluateWindow classifies the last observation of window. window must be
// ordered oldest to newest; only the newest size entries are used. The
// standard deviation is the sample (n-1) deviation over the whole window,
// newest observation included.
func EvaluateWindow(window []models.Observation, size int, threshold float64) models.Evaluation {
	if size < 2 {
		size = 2
	}
	if len(window) < size {
		return models.Evaluation{Outcome: models.OutcomeInsufficientData, Size: len(window)}
	}
	window = window[len(window)-size:]

	flat := true
	var sum float64
	for _, o := range window {
		sum += o.Price
		if o.Price != window[0].Price {
			flat = false
		}
	}
	n := float64(len(window))
	mean := sum / n
	if flat {
		return models.Evaluation{Outcome: models.OutcomeNoVariation, Mean: window[0].Price, Size: len(window)}
	}

	var ss float64
	for _, o := range window {
		d := o.Price - mean
		ss += d * d
	}
	std := math.Sqrt(ss / (n - 1))
	if std == 0 || math.IsNaN(std) {
		return models.Evaluation{Outcome: models.OutcomeNoVariation, Mean: mean, Size: len(window)}
	}

	z := (window[len(window)-1].Price - mean) / std
	res := models.Evaluation{Outcome: models.OutcomeNormal, ZScore: z, Mean: mean, StdDev: std, Size: len(window)}
	if math.Abs(z) > threshold {
		res.Outcome = models.OutcomeAnomaly
		res.Kind = models.KindForZ(z)
	}
	return res
}

var _ domsvc.AnomalyEvaluator = (*ZScoreEvaluator)(nil)
