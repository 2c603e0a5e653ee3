// Package rules defines the RuleSet configuration schema: the weights,
// thresholds, and enabled factors that drive message scoring.
//
// A RuleSet is validated once at load time and treated as immutable
// afterwards. Per-call overrides are merged over the loaded defaults with
// Merge; the merged result is re-validated before use.
package rules

import (
	"errors"
	"fmt"
)

// ErrInvalidRules is the sentinel wrapped by every validation failure.
// A RuleSet that fails validation is a fatal configuration error: the
// engine must never run with it, and it is never silently coerced.
var ErrInvalidRules = errors.New("rules: invalid rule set")

// Quality sub-factor names.
const (
	FactorChannelTopicMatch = "channelTopicMatch"
	FactorKeywordMatch      = "keywordMatch"
	FactorReactions         = "reactions"
	FactorReplies           = "replies"
)

// Trust sub-factor names. Reputation, qualityAverage, quantity, violations
// and warnings are declared in the schema as staged-rollout extension points;
// the engine scores them as zero until an implementation lands.
const (
	FactorRoles          = "roles"
	FactorReputation     = "reputation"
	FactorQualityAverage = "qualityAverage"
	FactorQuantity       = "quantity"
	FactorViolations     = "violations"
	FactorWarnings       = "warnings"
)

// Threshold is a (min, ideal) pair for linear normalization. Ideal must be
// strictly greater than Min; equality is a degenerate configuration and is
// rejected at validation time.
type Threshold struct {
	Min   float64 `json:"min"`
	Ideal float64 `json:"ideal"`
}

// DurationThreshold is a (min, ideal) pair expressed as duration strings
// ("7d", "12h", "30m", "45s"; a bare number is milliseconds).
type DurationThreshold struct {
	Min   string `json:"min"`
	Ideal string `json:"ideal"`
}

// ThresholdFactor is a scoring dimension normalized against a numeric
// threshold pair.
type ThresholdFactor struct {
	Weight     float64   `json:"weight"`
	Thresholds Threshold `json:"thresholds"`
}

// SubFactor is a scoring dimension composed of enabled sub-signals.
type SubFactor struct {
	Weight  float64  `json:"weight"`
	Factors []string `json:"factors"`
}

// Has reports whether the named sub-signal is enabled.
func (f SubFactor) Has(name string) bool {
	for _, s := range f.Factors {
		if s == name {
			return true
		}
	}
	return false
}

// DurationFactor is a scoring dimension normalized against duration-string
// thresholds.
type DurationFactor struct {
	Weight     float64           `json:"weight"`
	Thresholds DurationThreshold `json:"thresholds"`
}

// Conditions are the hard gate requirements, all of which must hold for a
// message to qualify, independent of the weighted scores.
type Conditions struct {
	MinLength       int     `json:"minLength"`
	MinReactions    int     `json:"minReactions"`
	MinQualityScore float64 `json:"minQualityScore"`
	MinTrustScore   float64 `json:"minTrustScore"`
}

// QualityFactors configures the quality-score dimensions.
type QualityFactors struct {
	MessageLength ThresholdFactor `json:"messageLength"`
	UniqueWords   ThresholdFactor `json:"uniqueWords"`
	Relevance     SubFactor       `json:"relevance"`
	Engagement    SubFactor       `json:"engagement"`
}

// TrustFactors configures the trust-score dimensions.
type TrustFactors struct {
	AccountAge            DurationFactor `json:"accountAge"`
	PreviousContributions SubFactor      `json:"previousContributions"`
	CommunityStanding     SubFactor      `json:"communityStanding"`
	ReportHistory         SubFactor      `json:"reportHistory"`
}

// Scoring groups the factor tables.
type Scoring struct {
	QualityFactors QualityFactors `json:"qualityFactors"`
	TrustFactors   TrustFactors   `json:"trustFactors"`
}

// RuleSet is the full validated configuration bundle.
//
// Weights are meaningful only relative to each other; the engine does not
// require them to sum to 1. Aggregated scores are clamped to [0,1], so an
// over-weighted configuration saturates rather than overflows.
type RuleSet struct {
	Conditions Conditions `json:"conditions"`
	Scoring    Scoring    `json:"scoring"`
}

var (
	qualityRelevanceEnum  = map[string]bool{FactorChannelTopicMatch: true, FactorKeywordMatch: true}
	qualityEngagementEnum = map[string]bool{FactorReactions: true, FactorReplies: true}
	trustContributionEnum = map[string]bool{FactorQualityAverage: true, FactorQuantity: true}
	trustStandingEnum     = map[string]bool{FactorRoles: true, FactorReputation: true}
	trustReportEnum       = map[string]bool{FactorViolations: true, FactorWarnings: true}
)

// Validate checks the full schema: numeric ranges, threshold-pair
// monotonicity, duration parseability, and sub-factor enum membership.
func (r RuleSet) Validate() error {
	c := r.Conditions
	if c.MinLength < 0 {
		return invalid("conditions.minLength must be >= 0 (got %d)", c.MinLength)
	}
	if c.MinReactions < 0 {
		return invalid("conditions.minReactions must be >= 0 (got %d)", c.MinReactions)
	}
	if c.MinQualityScore < 0 || c.MinQualityScore > 1 {
		return invalid("conditions.minQualityScore must be in [0,1] (got %g)", c.MinQualityScore)
	}
	if c.MinTrustScore < 0 || c.MinTrustScore > 1 {
		return invalid("conditions.minTrustScore must be in [0,1] (got %g)", c.MinTrustScore)
	}

	q := r.Scoring.QualityFactors
	if err := validateThresholdFactor("qualityFactors.messageLength", q.MessageLength); err != nil {
		return err
	}
	if err := validateThresholdFactor("qualityFactors.uniqueWords", q.UniqueWords); err != nil {
		return err
	}
	if err := validateSubFactor("qualityFactors.relevance", q.Relevance, qualityRelevanceEnum); err != nil {
		return err
	}
	if err := validateSubFactor("qualityFactors.engagement", q.Engagement, qualityEngagementEnum); err != nil {
		return err
	}

	t := r.Scoring.TrustFactors
	if err := validateWeight("trustFactors.accountAge", t.AccountAge.Weight); err != nil {
		return err
	}
	minAge, err := ParseDurationString(t.AccountAge.Thresholds.Min)
	if err != nil {
		return invalid("trustFactors.accountAge.thresholds.min: %v", err)
	}
	idealAge, err := ParseDurationString(t.AccountAge.Thresholds.Ideal)
	if err != nil {
		return invalid("trustFactors.accountAge.thresholds.ideal: %v", err)
	}
	if idealAge <= minAge {
		return invalid("trustFactors.accountAge thresholds are degenerate: ideal %q <= min %q",
			t.AccountAge.Thresholds.Ideal, t.AccountAge.Thresholds.Min)
	}
	if err := validateSubFactor("trustFactors.previousContributions", t.PreviousContributions, trustContributionEnum); err != nil {
		return err
	}
	if err := validateSubFactor("trustFactors.communityStanding", t.CommunityStanding, trustStandingEnum); err != nil {
		return err
	}
	if err := validateSubFactor("trustFactors.reportHistory", t.ReportHistory, trustReportEnum); err != nil {
		return err
	}
	return nil
}

func validateThresholdFactor(path string, f ThresholdFactor) error {
	if err := validateWeight(path, f.Weight); err != nil {
		return err
	}
	if f.Thresholds.Min < 0 {
		return invalid("%s.thresholds.min must be >= 0 (got %g)", path, f.Thresholds.Min)
	}
	if f.Thresholds.Ideal <= f.Thresholds.Min {
		return invalid("%s thresholds are degenerate: ideal %g <= min %g",
			path, f.Thresholds.Ideal, f.Thresholds.Min)
	}
	return nil
}

func validateSubFactor(path string, f SubFactor, enum map[string]bool) error {
	if err := validateWeight(path, f.Weight); err != nil {
		return err
	}
	for _, name := range f.Factors {
		if !enum[name] {
			return invalid("%s.factors contains unknown factor %q", path, name)
		}
	}
	return nil
}

func validateWeight(path string, w float64) error {
	if w < 0 || w > 1 {
		return invalid("%s.weight must be in [0,1] (got %g)", path, w)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRules, fmt.Sprintf(format, args...))
}
