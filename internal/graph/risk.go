package graph

import (
	"fmt"

	"pleno/audit/internal/telemetry"
)

// RiskLevel is the band a 0-100 risk score falls into
type RiskLevel string

const (
	LevelCritical RiskLevel = "critical"
	LevelHigh     RiskLevel = "high"
	LevelMedium   RiskLevel = "medium"
	LevelLow      RiskLevel = "low"
	LevelInfo     RiskLevel = "info"
)

// IsValid reports whether l is a known risk level
func (l RiskLevel) IsValid() bool {
	switch l {
	case LevelCritical, LevelHigh, LevelMedium, LevelLow, LevelInfo:
		return true
	default:
		return false
	}
}

// AllRiskLevels returns every level from critical to info
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{LevelCritical, LevelHigh, LevelMedium, LevelLow, LevelInfo}
}

// ParseRiskLevel parses a level name
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(s)
	if !l.IsValid() {
		return "", fmt.Errorf("invalid risk level: %s", s)
	}
	return l, nil
}

// Lower bounds (inclusive) of each band. Shared with the rest of the
// detection stack.
const (
	CriticalThreshold = 80
	HighThreshold     = 60
	MediumThreshold   = 40
	LowThreshold      = 20
)

// Score contributions
const (
	MaxRiskScore = 100

	loginWithoutPrivacyPoints = 15
	sessionCookiePoints       = 10
	cspViolationPoints        = 5
	cspViolationCap           = 20
)

// LevelForScore maps a score onto its risk band. Lower bounds are inclusive,
// so 40 (a lone high-confidence NRD verdict) is medium, not low.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return LevelCritical
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	case score >= LowThreshold:
		return LevelLow
	default:
		return LevelInfo
	}
}

// RiskFactors are the facts about a domain that feed its score
type RiskFactors struct {
	IsNRD               bool
	NRDConfidence       telemetry.Confidence
	IsTyposquat         bool
	TyposquatConfidence telemetry.Confidence
	HasLogin            bool
	HasPrivacyPolicy    bool
	SessionCookies      int
	CSPViolations       int
}

// ScoreDomain scores a detected service. It is pure: the same service always
// yields the same score.
func ScoreDomain(svc telemetry.DetectedService) (int, RiskLevel) {
	return ScoreFactors(FactorsFromService(svc))
}

// FactorsFromService extracts the scoring inputs of a detected service
func FactorsFromService(svc telemetry.DetectedService) RiskFactors {
	f := RiskFactors{
		HasLogin:         svc.HasLoginPage,
		HasPrivacyPolicy: svc.PrivacyPolicyURL != "",
		SessionCookies:   svc.SessionCookieCount(),
	}
	if r := svc.NRDResult; r != nil && r.IsNRD {
		f.IsNRD = true
		f.NRDConfidence = telemetry.ParseConfidence(r.Confidence)
	}
	if r := svc.TyposquatResult; r != nil && r.IsTyposquat {
		f.IsTyposquat = true
		f.TyposquatConfidence = telemetry.ParseConfidence(r.Confidence)
	}
	return f
}

func factorsFromMetadata(m DomainMetadata) RiskFactors {
	return RiskFactors{
		IsNRD:               m.IsNRD,
		NRDConfidence:       m.NRDConfidence,
		IsTyposquat:         m.IsTyposquat,
		TyposquatConfidence: m.TyposquatConfidence,
		HasLogin:            m.HasLogin,
		HasPrivacyPolicy:    m.HasPrivacyPolicy,
		SessionCookies:      m.SessionCookieCount,
		CSPViolations:       m.CSPViolations,
	}
}

// ScoreFactors adds up the contributions and clamps to [0, 100].
// Session cookies only amplify a domain that is already NRD or typosquat flagged.
func ScoreFactors(f RiskFactors) (int, RiskLevel) {
	score := 0
	if f.IsNRD {
		score += confidencePoints(f.NRDConfidence)
	}
	if f.IsTyposquat {
		score += confidencePoints(f.TyposquatConfidence)
	}
	if f.HasLogin && !f.HasPrivacyPolicy {
		score += loginWithoutPrivacyPoints
	}
	if f.SessionCookies > 0 && (f.IsNRD || f.IsTyposquat) {
		score += sessionCookiePoints
	}
	if f.CSPViolations > 0 {
		score += min(f.CSPViolations*cspViolationPoints, cspViolationCap)
	}
	score = clampScore(score)
	return score, LevelForScore(score)
}

func confidencePoints(c telemetry.Confidence) int {
	switch c {
	case telemetry.ConfidenceHigh:
		return 40
	case telemetry.ConfidenceMedium:
		return 25
	case telemetry.ConfidenceLow:
		return 10
	default:
		return 0
	}
}

func clampScore(score int) int {
	return max(0, min(score, MaxRiskScore))
}
