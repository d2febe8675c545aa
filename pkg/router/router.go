// Package router implements the confidence-based Tier Router (C4): the
// pure function that decides which tier's result is final, and the
// escalation rule applied after Tier 2 completes.
package router

import "github.com/jordigilh/sentinel-gate/pkg/patterns"

// Confidence bounds for the three-tier routing table.
const (
	tier1Threshold    = 0.80
	tier2Threshold    = 0.15
	grayZoneThreshold = 0.05

	// escalationConfidenceThreshold gates the gray-zone escalation rule.
	escalationConfidenceThreshold = 0.15
	// lowConfidenceDetectionThreshold gates the "class reported but weak"
	// escalation rule, independent of the gray zone above.
	lowConfidenceDetectionThreshold = 0.25
)

// TierDecision is the router's verdict on which tier handles a request.
type TierDecision struct {
	Tier       int
	Reason     string
	Confidence float64
}

// Route is a pure function of confidence: c>=0.80 -> tier 1 final,
// 0.15<=c<0.80 -> tier 2 semantic, 0.05<=c<0.15 -> tier 3 gray zone,
// c<0.05 -> tier 3 deep analysis.
func Route(confidence float64) TierDecision {
	switch {
	case confidence >= tier1Threshold:
		return TierDecision{Tier: 1, Reason: "final", Confidence: confidence}
	case confidence >= tier2Threshold:
		return TierDecision{Tier: 2, Reason: "semantic", Confidence: confidence}
	case confidence >= grayZoneThreshold:
		return TierDecision{Tier: 3, Reason: "gray zone", Confidence: confidence}
	default:
		return TierDecision{Tier: 3, Reason: "deep analysis", Confidence: confidence}
	}
}

// ShouldEscalate implements the post-Tier-2 escalation rule: escalate to
// Tier 3 iff the gray zone bounds confidence, or a failure class was
// reported with low confidence, and Tier 3 is actually available.
// Escalation reuses tier2.Confidence whether or not a class was
// detected, per the Open Question resolution in the design notes.
func ShouldEscalate(tier2 patterns.TierResult, tier3Available bool) bool {
	if !tier3Available {
		return false
	}

	c := tier2.Confidence
	inGrayZone := c >= grayZoneThreshold && c < escalationConfidenceThreshold
	weakDetection := tier2.FailureClass != nil && c < lowConfidenceDetectionThreshold

	return inGrayZone || weakDetection
}
