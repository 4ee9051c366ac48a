package core

import "github.com/gridsignals/urbangrid-simulator/model"

// Risk classification thresholds, shared by every caller. Both boundaries
// are inclusive on the higher band: a score of exactly 20 is medium, a score
// of exactly 40 is high.
const (
	RiskMediumThreshold = 20
	RiskHighThreshold   = 40
)

// ClassifyRisk buckets a 0..100 risk score into its discrete level.
func ClassifyRisk(score int) model.RiskLevel {
	switch {
	case score >= RiskHighThreshold:
		return model.RiskHigh
	case score >= RiskMediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
