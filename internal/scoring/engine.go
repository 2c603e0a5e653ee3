package scoring

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/rules"
)

// Fixed sub-signal parameters. These are part of the scoring contract, not
// the configurable rule set: configuration chooses which sub-signals are
// enabled, the engine owns how each one is measured.
const (
	topicSimilarityFloor = 0.3
	subSignalCredit      = 0.5

	reactionMin   = 1
	reactionIdeal = 5
	replyMin      = 1
	replyIdeal    = 3
	roleMin       = 1
	roleIdeal     = 5
)

// trustScorer computes one trust factor's raw score (before its weight is
// applied). The capability table maps factor names to scorers; factors
// declared in the schema but not yet implemented map to zeroScore, so
// configuration authors can stage rollout of new signals without breaking
// evaluation.
type trustScorer func(e *Engine, snap model.MessageSnapshot, f rules.SubFactor) float64

func zeroScore(*Engine, model.MessageSnapshot, rules.SubFactor) float64 { return 0 }

var trustScorers = map[string]trustScorer{
	"communityStanding":     (*Engine).communityStandingScore,
	"previousContributions": zeroScore,
	"reportHistory":         zeroScore,
}

// Engine scores message snapshots against an immutable, validated RuleSet.
// Evaluation is pure and side-effect free; a single Engine may be used from
// concurrent goroutines.
type Engine struct {
	rules rules.RuleSet

	// now is injectable for deterministic account-age tests.
	now func() time.Time
}

// New creates an Engine. The RuleSet must already be validated; New does not
// re-validate.
func New(rs rules.RuleSet) *Engine {
	return &Engine{rules: rs, now: time.Now}
}

// WithClock returns a copy of the engine using the given clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	clone := *e
	clone.now = now
	return &clone
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() rules.RuleSet { return e.rules }

// Evaluate produces a fresh ScoreResult for the snapshot. Outcome caching by
// message identity is the reward guard's job, never the engine's.
func (e *Engine) Evaluate(snap model.MessageSnapshot) model.ScoreResult {
	quality := e.qualityScore(snap)
	trust := e.trustScore(snap)

	// Length rules count characters, not bytes, so multi-byte scripts are
	// measured the same as ASCII.
	c := e.rules.Conditions
	meets := utf8.RuneCountInString(snap.Content) >= c.MinLength &&
		snap.ReactionCount >= c.MinReactions &&
		quality >= c.MinQualityScore &&
		trust >= c.MinTrustScore

	return model.ScoreResult{
		QualityScore:    quality,
		TrustScore:      trust,
		MeetsConditions: meets,
	}
}

func (e *Engine) qualityScore(snap model.MessageSnapshot) float64 {
	q := e.rules.Scoring.QualityFactors
	var score float64

	lengthScore := Normalize(float64(utf8.RuneCountInString(snap.Content)),
		q.MessageLength.Thresholds.Min, q.MessageLength.Thresholds.Ideal)
	score += lengthScore * q.MessageLength.Weight

	uniqueScore := Normalize(float64(snap.DistinctTokens()),
		q.UniqueWords.Thresholds.Min, q.UniqueWords.Thresholds.Ideal)
	score += uniqueScore * q.UniqueWords.Weight

	score += e.relevanceScore(snap) * q.Relevance.Weight
	score += e.engagementScore(snap) * q.Engagement.Weight

	return clamp01(score)
}

// relevanceScore sums fixed partial credits from the enabled relevance
// sub-signals. The two contributions are added as-is; the factor's own
// weight is applied by the caller.
func (e *Engine) relevanceScore(snap model.MessageSnapshot) float64 {
	rel := e.rules.Scoring.QualityFactors.Relevance
	var score float64

	if rel.Has(rules.FactorChannelTopicMatch) && snap.ChannelTopic != "" {
		content := strings.ToLower(snap.Content)
		topic := strings.ToLower(snap.ChannelTopic)
		if Jaccard(content, topic) > topicSimilarityFloor {
			score += subSignalCredit
		}
	}

	if rel.Has(rules.FactorKeywordMatch) {
		// Reserved slot for a pluggable keyword matcher; the default policy
		// always awards the credit.
		score += subSignalCredit
	}

	return score
}

func (e *Engine) engagementScore(snap model.MessageSnapshot) float64 {
	eng := e.rules.Scoring.QualityFactors.Engagement
	var score float64

	if eng.Has(rules.FactorReactions) {
		score += Normalize(float64(snap.ReactionCount), reactionMin, reactionIdeal) * subSignalCredit
	}
	if eng.Has(rules.FactorReplies) {
		score += Normalize(float64(snap.ThreadReplyCount), replyMin, replyIdeal) * subSignalCredit
	}

	return score
}

func (e *Engine) trustScore(snap model.MessageSnapshot) float64 {
	t := e.rules.Scoring.TrustFactors
	var score float64

	// Account age thresholds were validated parseable at load time.
	minAge, _ := rules.ParseDurationString(t.AccountAge.Thresholds.Min)
	idealAge, _ := rules.ParseDurationString(t.AccountAge.Thresholds.Ideal)
	age := e.now().Sub(snap.AuthorCreatedAt)
	ageScore := Normalize(float64(age), float64(minAge), float64(idealAge))
	score += ageScore * t.AccountAge.Weight

	score += trustScorers["communityStanding"](e, snap, t.CommunityStanding) * t.CommunityStanding.Weight
	score += trustScorers["previousContributions"](e, snap, t.PreviousContributions) * t.PreviousContributions.Weight
	score += trustScorers["reportHistory"](e, snap, t.ReportHistory) * t.ReportHistory.Weight

	return clamp01(score)
}

// communityStandingScore contributes only when the author's guild-member
// context was resolved; without it the factor degrades to zero.
func (e *Engine) communityStandingScore(snap model.MessageSnapshot, f rules.SubFactor) float64 {
	if !snap.HasMember {
		return 0
	}
	var score float64
	if f.Has(rules.FactorRoles) {
		score += Normalize(float64(snap.RoleCount), roleMin, roleIdeal) * subSignalCredit
	}
	// The reputation sub-factor is declared but carries no computation yet.
	return score
}
