package services

import (
	"math"

	"car-deal-finder/models"
)

// ScoringPolicy turns a TCO breakdown and an allow-list composite score into
// a single 0–100 deal score used to rank the ledger.
type ScoringPolicy interface {
	Name() string
	Score(tco *models.TCOBreakdown, compositeScore float64) float64
}

// NewScoringPolicy resolves a policy by its config name. Unknown names fall
// back to the composite-weighted default.
func NewScoringPolicy(name string) ScoringPolicy {
	if name == "reliability-gated" {
		return NewReliabilityGated()
	}
	return NewCompositeWeighted()
}

// CompositeWeighted is the default policy: cost per km carries most of the
// weight, with the allow-list composite score as a secondary factor. There is
// no hard cutoff; an unreliable car is down-weighted, not zeroed.
type CompositeWeighted struct {
	GoodCostPerKm   float64
	BadCostPerKm    float64
	CostWeight      float64
	CompositeWeight float64
}

// NewCompositeWeighted returns the policy with its standard thresholds:
// $0.30/km scores 100, $1.00/km scores 0, weighted 70/30 against the
// composite score.
func NewCompositeWeighted() *CompositeWeighted {
	return &CompositeWeighted{
		GoodCostPerKm:   0.30,
		BadCostPerKm:    1.00,
		CostWeight:      0.70,
		CompositeWeight: 0.30,
	}
}

func (p *CompositeWeighted) Name() string { return "composite" }

func (p *CompositeWeighted) Score(tco *models.TCOBreakdown, compositeScore float64) float64 {
	cost := costScore(tco.CostPerKm, p.GoodCostPerKm, p.BadCostPerKm)
	composite := clamp(compositeScore, 0, 100)
	return round2(cost*p.CostWeight + composite*p.CompositeWeight)
}

// ReliabilityGated is the legacy alternative: it scores reliability from the
// chart's QIR/defect rates instead of the composite score, and a defect rate
// past the cutoff zeroes the deal outright. Missing rates are neutral (50),
// never zero.
type ReliabilityGated struct {
	GoodCostPerKm     float64
	BadCostPerKm      float64
	CostWeight        float64
	ReliabilityWeight float64

	// Rates at which the respective sub-score bottoms out.
	QIRScale    float64
	DefectScale float64
	// Hard gate: a defect rate at or above this scores 0 regardless of cost.
	MaxDefectRate float64
}

// NewReliabilityGated returns the legacy policy with its standard knobs.
func NewReliabilityGated() *ReliabilityGated {
	return &ReliabilityGated{
		GoodCostPerKm:     0.30,
		BadCostPerKm:      1.00,
		CostWeight:        0.60,
		ReliabilityWeight: 0.40,
		QIRScale:          50,
		DefectScale:       25,
		MaxDefectRate:     20,
	}
}

func (p *ReliabilityGated) Name() string { return "reliability-gated" }

func (p *ReliabilityGated) Score(tco *models.TCOBreakdown, _ float64) float64 {
	if tco.DefectRate != nil && *tco.DefectRate >= p.MaxDefectRate {
		return 0
	}

	cost := costScore(tco.CostPerKm, p.GoodCostPerKm, p.BadCostPerKm)
	rel := p.reliabilityScore(tco.QIRRate, tco.DefectRate)
	return round2(cost*p.CostWeight + rel*p.ReliabilityWeight)
}

func (p *ReliabilityGated) reliabilityScore(qir, defect *float64) float64 {
	var sum float64
	var n int
	if qir != nil {
		sum += 100 * (1 - clamp(*qir/p.QIRScale, 0, 1))
		n++
	}
	if defect != nil {
		sum += 100 * (1 - clamp(*defect/p.DefectScale, 0, 1))
		n++
	}
	if n == 0 {
		return 50
	}
	return sum / float64(n)
}

// costScore maps cost per km onto 0–100 by linear interpolation between the
// good and bad thresholds, clamped at both ends. +Inf (degenerate math
// sentinel) lands on 0.
func costScore(costPerKm, good, bad float64) float64 {
	if math.IsInf(costPerKm, 1) || math.IsNaN(costPerKm) {
		return 0
	}
	normalized := clamp((costPerKm-good)/(bad-good), 0, 1)
	return 100 * (1 - normalized)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
