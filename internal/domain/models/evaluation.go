package models

// Outcome is the classification of one evaluation.
type Outcome int

const (
	OutcomeInsufficientData Outcome = iota
	OutcomeNoVariation
	OutcomeNormal
	OutcomeAnomaly
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInsufficientData:
		return "insufficient_data"
	case OutcomeNoVariation:
		return "no_variation"
	case OutcomeNormal:
		return "normal"
	case OutcomeAnomaly:
		return "anomaly"
	default:
		return "unknown"
	}
}

// Evaluation is the result of a z-score test. ZScore, Mean and StdDev are
// only meaningful for Normal and Anomaly; Kind only for Anomaly.
type Evaluation struct {
	Outcome Outcome
	ZScore  float64
	Kind    SignalKind
	Mean    float64
	StdDev  float64
	Size    int
}

// IsAnomaly reports whether a signal should be emitted.
func (e Evaluation) IsAnomaly() bool { return e.Outcome == OutcomeAnomaly }
