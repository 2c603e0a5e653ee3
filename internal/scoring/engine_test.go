package scoring_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/rules"
	"github.com/open-format/rewarder/internal/scoring"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	rs, err := rules.DefaultRuleSet()
	require.NoError(t, err)
	return scoring.New(rs).WithClock(func() time.Time { return now })
}

func newEngineWith(t *testing.T, mutate func(*rules.RuleSet)) *scoring.Engine {
	t.Helper()
	rs, err := rules.DefaultRuleSet()
	require.NoError(t, err)
	mutate(&rs)
	require.NoError(t, rs.Validate())
	return scoring.New(rs).WithClock(func() time.Time { return now })
}

// aged returns an author creation time the given duration before the test clock.
func aged(d time.Duration) time.Time { return now.Add(-d) }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name              string
		value, min, ideal float64
		want              float64
	}{
		{"below min", 5, 10, 100, 0},
		{"just below min", 9.99, 10, 100, 0},
		{"exactly min", 10, 10, 100, 0},
		{"midpoint", 55, 10, 100, 0.5},
		{"exactly ideal", 100, 10, 100, 1},
		{"above ideal", 500, 10, 100, 1},
		{"zero value zero min", 0, 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoring.Normalize(tt.value, tt.min, tt.ideal), 1e-9)
		})
	}
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, scoring.Jaccard("go redis cache", "cache go redis"), 1e-9)
	assert.InDelta(t, 0.5, scoring.Jaccard("alpha beta", "alpha beta gamma delta"), 1e-9)
	assert.InDelta(t, 0.0, scoring.Jaccard("alpha", "beta"), 1e-9)
	assert.InDelta(t, 0.0, scoring.Jaccard("", ""), 1e-9)
	// Duplicate tokens collapse into a set before comparison.
	assert.InDelta(t, 1.0, scoring.Jaccard("go go go", "go"), 1e-9)
}

func TestEvaluateEmptyContent(t *testing.T) {
	engine := newEngine(t)
	res := engine.Evaluate(model.MessageSnapshot{
		AuthorID:        "2",
		AuthorCreatedAt: aged(400 * 24 * time.Hour),
	})

	// Length and unique-word factors contribute zero; only the flat
	// keywordMatch credit survives on the quality side.
	assert.InDelta(t, 0.5*0.25, res.QualityScore, 1e-9)
	assert.False(t, res.MeetsConditions)
}

func TestEvaluateGateFailsOnSingleCondition(t *testing.T) {
	content := strings.Repeat("meaningful unique expressive tokens vary wildly here okay then some ", 3)

	t.Run("length below gate", func(t *testing.T) {
		engine := newEngineWith(t, func(rs *rules.RuleSet) {
			rs.Conditions.MinLength = 10_000
		})
		res := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
			ReactionCount:   5,
		})
		assert.False(t, res.MeetsConditions)
	})

	t.Run("reactions below gate", func(t *testing.T) {
		engine := newEngineWith(t, func(rs *rules.RuleSet) {
			rs.Conditions.MinReactions = 3
		})
		res := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
			ReactionCount:   2,
		})
		assert.False(t, res.MeetsConditions)
	})

	t.Run("trust below gate", func(t *testing.T) {
		engine := newEngine(t)
		res := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(24 * time.Hour), // brand-new account
			ReactionCount:   5,
		})
		assert.False(t, res.MeetsConditions)
		assert.Zero(t, res.TrustScore)
	})

	t.Run("all conditions hold", func(t *testing.T) {
		engine := newEngine(t)
		res := engine.Evaluate(model.MessageSnapshot{
			Content:          content,
			AuthorCreatedAt:  aged(400 * 24 * time.Hour),
			ReactionCount:    5,
			ThreadReplyCount: 3,
		})
		assert.True(t, res.MeetsConditions)
	})
}

func TestLengthCountsCharactersNotBytes(t *testing.T) {
	t.Run("gate", func(t *testing.T) {
		engine := newEngineWith(t, func(rs *rules.RuleSet) {
			rs.Conditions.MinLength = 10
			rs.Conditions.MinQualityScore = 0
			rs.Conditions.MinTrustScore = 0
		})

		// Five CJK characters span fifteen bytes but stay below the
		// ten-character minimum.
		res := engine.Evaluate(model.MessageSnapshot{
			Content:         strings.Repeat("五", 5),
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		assert.False(t, res.MeetsConditions)

		res = engine.Evaluate(model.MessageSnapshot{
			Content:         strings.Repeat("長", 10),
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		assert.True(t, res.MeetsConditions)
	})

	t.Run("length factor", func(t *testing.T) {
		engine := newEngineWith(t, func(rs *rules.RuleSet) {
			// Isolate the length factor.
			rs.Scoring.QualityFactors.MessageLength.Weight = 1
			rs.Scoring.QualityFactors.UniqueWords.Weight = 0
			rs.Scoring.QualityFactors.Relevance.Weight = 0
			rs.Scoring.QualityFactors.Engagement.Weight = 0
		})

		// 55 characters against default thresholds 10/100, regardless of
		// how many bytes each character takes.
		res := engine.Evaluate(model.MessageSnapshot{Content: strings.Repeat("語", 55)})
		assert.InDelta(t, 0.5, res.QualityScore, 1e-9)
	})
}

func TestAccountAgeNormalization(t *testing.T) {
	engine := newEngineWith(t, func(rs *rules.RuleSet) {
		// Isolate the age factor.
		rs.Scoring.TrustFactors.AccountAge.Weight = 1
		rs.Scoring.TrustFactors.PreviousContributions.Weight = 0
		rs.Scoring.TrustFactors.CommunityStanding.Weight = 0
		rs.Scoring.TrustFactors.ReportHistory.Weight = 0
	})

	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"below min", 3 * 24 * time.Hour, 0},
		{"exactly min", 7 * 24 * time.Hour, 0},
		{"midway", (7 + 83*0.5) * 24 * time.Hour, 0.5},
		{"exactly ideal", 90 * 24 * time.Hour, 1},
		{"well past ideal", 5 * 365 * 24 * time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Evaluate(model.MessageSnapshot{AuthorCreatedAt: aged(tt.age)})
			assert.InDelta(t, tt.want, res.TrustScore, 1e-6)
		})
	}
}

func TestRelevanceTopicMatch(t *testing.T) {
	content := "the redis cache layer handles key eviction and ttl policy decisions"

	t.Run("similar topic earns both credits", func(t *testing.T) {
		engine := newEngine(t)
		withTopic := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			ChannelTopic:    "redis cache eviction ttl key policy decisions layer handles",
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		withoutTopic := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		// Topic credit is 0.5 raw, scaled by the relevance weight.
		assert.InDelta(t, 0.5*0.25, withTopic.QualityScore-withoutTopic.QualityScore, 1e-9)
	})

	t.Run("dissimilar topic earns nothing", func(t *testing.T) {
		engine := newEngine(t)
		dissimilar := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			ChannelTopic:    "gardening tips and houseplant watering schedules",
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		noTopic := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		assert.InDelta(t, noTopic.QualityScore, dissimilar.QualityScore, 1e-9)
	})

	t.Run("topic signal disabled", func(t *testing.T) {
		engine := newEngineWith(t, func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.Relevance.Factors = []string{rules.FactorKeywordMatch}
		})
		res := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			ChannelTopic:    content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		disabled := engine.Evaluate(model.MessageSnapshot{
			Content:         content,
			AuthorCreatedAt: aged(400 * 24 * time.Hour),
		})
		assert.InDelta(t, disabled.QualityScore, res.QualityScore, 1e-9)
	})
}

func TestEngagementContributions(t *testing.T) {
	engine := newEngineWith(t, func(rs *rules.RuleSet) {
		// Isolate engagement.
		rs.Scoring.QualityFactors.MessageLength.Weight = 0
		rs.Scoring.QualityFactors.UniqueWords.Weight = 0
		rs.Scoring.QualityFactors.Relevance.Weight = 0
		rs.Scoring.QualityFactors.Engagement.Weight = 1
	})

	// 5 reactions saturate (score 0.5); 3 thread replies saturate (score 0.5).
	res := engine.Evaluate(model.MessageSnapshot{
		ReactionCount:    5,
		ThreadReplyCount: 3,
		AuthorCreatedAt:  aged(24 * time.Hour),
	})
	assert.InDelta(t, 1.0, res.QualityScore, 1e-9)

	// One reaction is exactly the min threshold and scores zero.
	res = engine.Evaluate(model.MessageSnapshot{
		ReactionCount:   1,
		AuthorCreatedAt: aged(24 * time.Hour),
	})
	assert.InDelta(t, 0.0, res.QualityScore, 1e-9)

	// Three reactions interpolate: (3-1)/(5-1) = 0.5, scaled by credit 0.5.
	res = engine.Evaluate(model.MessageSnapshot{
		ReactionCount:   3,
		AuthorCreatedAt: aged(24 * time.Hour),
	})
	assert.InDelta(t, 0.25, res.QualityScore, 1e-9)
}

func TestCommunityStandingRequiresMemberContext(t *testing.T) {
	engine := newEngineWith(t, func(rs *rules.RuleSet) {
		rs.Scoring.TrustFactors.AccountAge.Weight = 0
		rs.Scoring.TrustFactors.PreviousContributions.Weight = 0
		rs.Scoring.TrustFactors.CommunityStanding.Weight = 1
		rs.Scoring.TrustFactors.ReportHistory.Weight = 0
	})

	withMember := engine.Evaluate(model.MessageSnapshot{
		HasMember: true,
		RoleCount: 5,
	})
	assert.InDelta(t, 0.5, withMember.TrustScore, 1e-9)

	withoutMember := engine.Evaluate(model.MessageSnapshot{
		RoleCount: 5,
	})
	assert.Zero(t, withoutMember.TrustScore)
}

func TestUnimplementedTrustFactorsContributeZero(t *testing.T) {
	engine := newEngineWith(t, func(rs *rules.RuleSet) {
		rs.Scoring.TrustFactors.AccountAge.Weight = 0
		rs.Scoring.TrustFactors.CommunityStanding.Weight = 0
		rs.Scoring.TrustFactors.PreviousContributions.Weight = 1
		rs.Scoring.TrustFactors.ReportHistory.Weight = 1
	})

	res := engine.Evaluate(model.MessageSnapshot{
		Content:         "plenty of history and reports here",
		AuthorCreatedAt: aged(400 * 24 * time.Hour),
	})
	assert.Zero(t, res.TrustScore)
}

func TestScoreClampsAtOne(t *testing.T) {
	engine := newEngineWith(t, func(rs *rules.RuleSet) {
		// Deliberately over-weighted configuration.
		rs.Scoring.QualityFactors.MessageLength.Weight = 1
		rs.Scoring.QualityFactors.UniqueWords.Weight = 1
		rs.Scoring.QualityFactors.Relevance.Weight = 1
		rs.Scoring.QualityFactors.Engagement.Weight = 1
	})

	words := make([]string, 60)
	for i := range words {
		words[i] = strings.Repeat(string(rune('a'+i%26)), i/26+2)
	}
	res := engine.Evaluate(model.MessageSnapshot{
		Content:          strings.Join(words, " "),
		ReactionCount:    10,
		ThreadReplyCount: 10,
		AuthorCreatedAt:  aged(400 * 24 * time.Hour),
	})
	assert.Equal(t, 1.0, res.QualityScore)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := newEngine(t)
	snap := model.MessageSnapshot{
		Content:         "a reasonably long message with several distinct words in it",
		ReactionCount:   2,
		AuthorCreatedAt: aged(30 * 24 * time.Hour),
	}
	first := engine.Evaluate(snap)
	for range 10 {
		assert.Equal(t, first, engine.Evaluate(snap))
	}
}
