package model

import "fmt"

const (
	LevelHigh     = "high"
	LevelModerate = "moderate"
	LevelLow      = "low"

	highThreshold     = 0.7
	moderateThreshold = 0.4
)

var interpretations = map[string]string{
	LevelHigh:     "High probability of melanoma - Consult a dermatologist immediately",
	LevelModerate: "Moderate probability of melanoma - Recommended to see a specialist",
	LevelLow:      "Low probability of melanoma - Likely benign nevus",
}

// Level buckets a melanoma probability. Both thresholds are exclusive.
func Level(melanoma float64) string {
	switch {
	case melanoma > highThreshold:
		return LevelHigh
	case melanoma > moderateThreshold:
		return LevelModerate
	default:
		return LevelLow
	}
}

func Interpret(melanoma float64) string {
	return interpretations[Level(melanoma)]
}

// NewResponse shapes the raw model output, melanoma first, into the API response.
func NewResponse(probs []float32) (PredictionResponse, error) {
	if len(probs) != 2 {
		return PredictionResponse{}, fmt.Errorf("%w: expected 2 outputs, got %d", ErrInference, len(probs))
	}

	melanoma, nevus := float64(probs[0]), float64(probs[1])
	return PredictionResponse{
		Diagnosis: Diagnosis{
			Melanoma: melanoma,
			Nevus:    nevus,
		},
		Interpretation: Interpret(melanoma),
	}, nil
}
