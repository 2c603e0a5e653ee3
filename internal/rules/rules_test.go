package rules_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-format/rewarder/internal/rules"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func validRuleSet(t *testing.T) rules.RuleSet {
	t.Helper()
	rs, err := rules.DefaultRuleSet()
	require.NoError(t, err)
	return rs
}

func TestDefaultRuleSetIsValid(t *testing.T) {
	rs := validRuleSet(t)
	require.NoError(t, rs.Validate())
	assert.Equal(t, 10, rs.Conditions.MinLength)
	assert.True(t, rs.Scoring.QualityFactors.Relevance.Has(rules.FactorChannelTopicMatch))
	assert.True(t, rs.Scoring.TrustFactors.CommunityStanding.Has(rules.FactorRoles))
}

func TestValidateRejectsBadConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*rules.RuleSet)
	}{
		{"negative minLength", func(rs *rules.RuleSet) {
			rs.Conditions.MinLength = -1
		}},
		{"negative minReactions", func(rs *rules.RuleSet) {
			rs.Conditions.MinReactions = -5
		}},
		{"minQualityScore above one", func(rs *rules.RuleSet) {
			rs.Conditions.MinQualityScore = 1.2
		}},
		{"minTrustScore below zero", func(rs *rules.RuleSet) {
			rs.Conditions.MinTrustScore = -0.1
		}},
		{"degenerate length thresholds", func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.MessageLength.Thresholds = rules.Threshold{Min: 100, Ideal: 100}
		}},
		{"inverted uniqueWords thresholds", func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.UniqueWords.Thresholds = rules.Threshold{Min: 50, Ideal: 5}
		}},
		{"weight above one", func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.Relevance.Weight = 1.5
		}},
		{"negative weight", func(rs *rules.RuleSet) {
			rs.Scoring.TrustFactors.AccountAge.Weight = -0.25
		}},
		{"unknown relevance factor", func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.Relevance.Factors = []string{"sentiment"}
		}},
		{"engagement factor in relevance", func(rs *rules.RuleSet) {
			rs.Scoring.QualityFactors.Relevance.Factors = []string{rules.FactorReactions}
		}},
		{"unparseable accountAge min", func(rs *rules.RuleSet) {
			rs.Scoring.TrustFactors.AccountAge.Thresholds.Min = "1w"
		}},
		{"degenerate accountAge thresholds", func(rs *rules.RuleSet) {
			rs.Scoring.TrustFactors.AccountAge.Thresholds = rules.DurationThreshold{Min: "90d", Ideal: "7d"}
		}},
		{"unknown standing factor", func(rs *rules.RuleSet) {
			rs.Scoring.TrustFactors.CommunityStanding.Factors = []string{"karma"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := validRuleSet(t)
			tt.mutate(&rs)
			err := rs.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, rules.ErrInvalidRules)
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := rules.Decode([]byte(`{"conditions": {"minLenght": 10}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, rules.ErrInvalidRules)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := rules.Decode([]byte(`{"conditions":`))
	assert.ErrorIs(t, err, rules.ErrInvalidRules)
}

func TestMerge(t *testing.T) {
	base := validRuleSet(t)

	t.Run("nil overrides return base", func(t *testing.T) {
		merged, err := rules.Merge(base, nil)
		require.NoError(t, err)
		assert.Equal(t, base, merged)
	})

	t.Run("conditions replaced wholesale", func(t *testing.T) {
		o := &rules.Overrides{
			Conditions: &rules.Conditions{MinLength: 50, MinQualityScore: 0.9},
		}
		merged, err := rules.Merge(base, o)
		require.NoError(t, err)
		assert.Equal(t, 50, merged.Conditions.MinLength)
		assert.Equal(t, 0.9, merged.Conditions.MinQualityScore)
		// The other sections keep their defaults.
		assert.Equal(t, base.Scoring, merged.Scoring)
	})

	t.Run("invalid merged result is rejected", func(t *testing.T) {
		o := &rules.Overrides{
			Conditions: &rules.Conditions{MinQualityScore: 2.0},
		}
		_, err := rules.Merge(base, o)
		assert.ErrorIs(t, err, rules.ErrInvalidRules)
	})
}

func TestDecodeOverrides(t *testing.T) {
	o, err := rules.DecodeOverrides([]byte(`{"conditions": {"minLength": 25}}`))
	require.NoError(t, err)
	require.NotNil(t, o.Conditions)
	assert.Equal(t, 25, o.Conditions.MinLength)
	assert.Nil(t, o.QualityFactors)
	assert.Nil(t, o.TrustFactors)
}

func TestLoadResolutionOrder(t *testing.T) {
	defaults := validRuleSet(t)

	writeRules := func(t *testing.T, dir, name string, minLength int) {
		t.Helper()
		rs := defaults
		rs.Conditions.MinLength = minLength
		data, err := json.Marshal(rs)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}

	t.Run("empty dir falls back to embedded defaults", func(t *testing.T) {
		rs, err := rules.Load(t.TempDir(), "production", testLogger())
		require.NoError(t, err)
		assert.Equal(t, defaults, rs)
	})

	t.Run("no dir uses embedded defaults", func(t *testing.T) {
		rs, err := rules.Load("", "", testLogger())
		require.NoError(t, err)
		assert.Equal(t, defaults, rs)
	})

	t.Run("base document wins over defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeRules(t, dir, "scoring-rules.json", 42)
		rs, err := rules.Load(dir, "production", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 42, rs.Conditions.MinLength)
	})

	t.Run("environment document wins over base", func(t *testing.T) {
		dir := t.TempDir()
		writeRules(t, dir, "scoring-rules.json", 42)
		writeRules(t, dir, "scoring-rules.production.json", 77)
		rs, err := rules.Load(dir, "production", testLogger())
		require.NoError(t, err)
		assert.Equal(t, 77, rs.Conditions.MinLength)
	})

	t.Run("present but invalid document is fatal", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring-rules.json"), []byte(`{"bad":`), 0o600))
		_, err := rules.Load(dir, "", testLogger())
		assert.ErrorIs(t, err, rules.ErrInvalidRules)
	})
}
