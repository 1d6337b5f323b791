package service

import "PriceSentinel/internal/domain/models"

// AnomalyEvaluator classifies the newest observation of a window against the window itself.
type AnomalyEvaluator interface {
	Evaluate(window []models.Observation) models.Evaluation
	WindowSize() int
}
