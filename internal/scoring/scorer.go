package scoring

import "audit-service/internal/domain/audit"

// Scorer maps an aggregate to a score, a deduction and a status per its
// policy. Score is a pure function of the input aggregate.
type Scorer struct {
	policy Policy
}

func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score evaluates the policy rule table against the aggregate. The first
// critical rule whose label was observed wins outright: its fixed deduction
// is the whole deduction and no incremental weights are applied, including
// later critical rules. Without a critical match, the deduction is the sum
// of count times weight over the non-critical rules. Both the deduction and
// the final score are clamped to [0, 100].
func (s *Scorer) Score(counts audit.AggregateDefectCounts) audit.ScoreResult {
	deduction := 0
	critical := false

	for _, rule := range s.policy.Rules {
		if rule.Critical && counts[rule.Label] > 0 {
			deduction = rule.CriticalDeduction
			critical = true
			break
		}
	}

	if !critical {
		for _, rule := range s.policy.Rules {
			if rule.Critical {
				continue
			}
			deduction += counts[rule.Label] * rule.Weight
		}
	}

	deduction = clamp(deduction, 0, 100)
	finalScore := clamp(100-deduction, 0, 100)

	return audit.ScoreResult{
		FinalScore: finalScore,
		Deduction:  deduction,
		Status:     s.status(finalScore, critical),
		Critical:   critical,
	}
}

func (s *Scorer) status(finalScore int, critical bool) string {
	bands := s.policy.Bands
	switch {
	case critical || finalScore < bands.CriticalBelow:
		return bands.CriticalStatus
	case finalScore < bands.MinorBelow:
		return bands.MinorStatus
	default:
		return bands.GoodStatus
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
