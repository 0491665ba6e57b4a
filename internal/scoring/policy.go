package scoring

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Rule scores one defect label. A critical rule, once matched (count > 0),
// declares the outcome with a fixed deduction and suppresses all incremental
// accumulation; a non-critical rule contributes Weight per counted defect.
type Rule struct {
	Label             string `mapstructure:"label"`
	Weight            int    `mapstructure:"weight"`
	Critical          bool   `mapstructure:"critical"`
	CriticalDeduction int    `mapstructure:"critical_deduction"`
}

// Bands maps a final score to a qualitative status. Thresholds are ordered:
// a critical outcome or a score below CriticalBelow lands in CriticalStatus,
// a score below MinorBelow in MinorStatus, anything else in GoodStatus.
type Bands struct {
	CriticalBelow  int    `mapstructure:"critical_below"`
	MinorBelow     int    `mapstructure:"minor_below"`
	CriticalStatus string `mapstructure:"critical_status"`
	MinorStatus    string `mapstructure:"minor_status"`
	GoodStatus     string `mapstructure:"good_status"`
}

// Policy is one deployment's scoring table. Different defect taxonomies are
// different policies over the same rule evaluation, never separate code.
type Policy struct {
	Name  string `mapstructure:"name"`
	Rules []Rule `mapstructure:"rules"`
	Bands Bands  `mapstructure:"bands"`
}

// CosmeticPolicy is the 5-class cosmetic-damage taxonomy used for
// classroom and office audits.
func CosmeticPolicy() Policy {
	return Policy{
		Name: "cosmetic",
		Rules: []Rule{
			{Label: "Retak", Weight: 15},
			{Label: "Patah", Weight: 20},
			{Label: "Bocor", Weight: 10},
			{Label: "Noda", Weight: 2},
			{Label: "Goresan", Weight: 2},
		},
		Bands: defaultBands(),
	}
}

// StructuralPolicy is the 3-class structural-safety taxonomy with hard
// critical failures.
func StructuralPolicy() Policy {
	return Policy{
		Name: "structural",
		Rules: []Rule{
			{Label: "dudukan_rusak", Critical: true, CriticalDeduction: 90},
			{Label: "kaki_patah", Critical: true, CriticalDeduction: 80},
			{Label: "sobek", Weight: 15},
		},
		Bands: defaultBands(),
	}
}

func defaultBands() Bands {
	return Bands{
		CriticalBelow:  60,
		MinorBelow:     85,
		CriticalStatus: "Critical",
		MinorStatus:    "Minor",
		GoodStatus:     "Good",
	}
}

// BuiltinPolicy resolves a compiled-in policy by name.
func BuiltinPolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosmetic":
		return CosmeticPolicy(), nil
	case "structural":
		return StructuralPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown scoring policy %q", name)
	}
}

// LoadPolicyFile reads a policy table from a YAML file. Band thresholds and
// statuses fall back to the defaults when the file omits them.
func LoadPolicyFile(path string) (Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	defaults := defaultBands()
	if p.Bands.CriticalBelow == 0 {
		p.Bands.CriticalBelow = defaults.CriticalBelow
	}
	if p.Bands.MinorBelow == 0 {
		p.Bands.MinorBelow = defaults.MinorBelow
	}
	if p.Bands.CriticalStatus == "" {
		p.Bands.CriticalStatus = defaults.CriticalStatus
	}
	if p.Bands.MinorStatus == "" {
		p.Bands.MinorStatus = defaults.MinorStatus
	}
	if p.Bands.GoodStatus == "" {
		p.Bands.GoodStatus = defaults.GoodStatus
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy %q has no rules", p.Name)
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.Label == "" {
			return fmt.Errorf("policy %q has a rule without a label", p.Name)
		}
		if seen[r.Label] {
			return fmt.Errorf("policy %q has duplicate rule for label %q", p.Name, r.Label)
		}
		seen[r.Label] = true
		if r.Critical && r.CriticalDeduction <= 0 {
			return fmt.Errorf("critical rule %q needs a positive deduction", r.Label)
		}
		if !r.Critical && r.Weight <= 0 {
			return fmt.Errorf("rule %q needs a positive weight", r.Label)
		}
	}
	if p.Bands.MinorBelow < p.Bands.CriticalBelow {
		return fmt.Errorf("policy %q bands are out of order", p.Name)
	}
	return nil
}
