package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed defaults/scoring-rules.json
var defaultsFS embed.FS

// DefaultRuleSet returns the embedded default document. It is validated at
// load, so a corrupted embed fails loudly rather than producing a zero
// RuleSet.
func DefaultRuleSet() (RuleSet, error) {
	raw, err := defaultsFS.ReadFile("defaults/scoring-rules.json")
	if err != nil {
		return RuleSet{}, fmt.Errorf("rules: read embedded defaults: %w", err)
	}
	return Decode(raw)
}

// Decode parses and validates a rules document. Unknown fields are rejected
// so typos in factor names surface as configuration errors instead of
// silently dropped settings.
func Decode(raw []byte) (RuleSet, error) {
	var rs RuleSet
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return RuleSet{}, fmt.Errorf("%w: parse: %v", ErrInvalidRules, err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// Load resolves the rules document for the given environment.
//
// Resolution order:
//  1. <dir>/scoring-rules.<env>.json
//  2. <dir>/scoring-rules.json
//  3. embedded defaults
//
// A file that is absent simply falls through to the next candidate. A file
// that is present but fails validation is a fatal configuration error —
// Load never falls back past an invalid document.
func Load(dir, env string, logger *slog.Logger) (RuleSet, error) {
	if dir != "" {
		candidates := []string{filepath.Join(dir, "scoring-rules.json")}
		if env != "" {
			candidates = append([]string{filepath.Join(dir, fmt.Sprintf("scoring-rules.%s.json", env))}, candidates...)
		}
		for _, path := range candidates {
			raw, err := os.ReadFile(path) //nolint:gosec // path comes from validated config, not user input
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return RuleSet{}, fmt.Errorf("rules: read %s: %w", path, err)
			}
			rs, err := Decode(raw)
			if err != nil {
				return RuleSet{}, fmt.Errorf("rules: %s: %w", path, err)
			}
			logger.Info("rules: loaded document", "path", path)
			return rs, nil
		}
	}

	rs, err := DefaultRuleSet()
	if err != nil {
		return RuleSet{}, err
	}
	logger.Info("rules: using embedded defaults", "dir", dir, "env", env)
	return rs, nil
}

// Overrides is a partial RuleSet applied on top of loaded defaults for a
// single call. Nil sections keep the default; present sections replace it
// wholesale.
type Overrides struct {
	Conditions     *Conditions     `json:"conditions,omitempty"`
	QualityFactors *QualityFactors `json:"qualityFactors,omitempty"`
	TrustFactors   *TrustFactors   `json:"trustFactors,omitempty"`
}

// DecodeOverrides parses a partial-override document without validating it;
// validation happens on the merged result in Merge.
func DecodeOverrides(raw []byte) (*Overrides, error) {
	var o Overrides
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("%w: parse overrides: %v", ErrInvalidRules, err)
	}
	return &o, nil
}

// Merge applies overrides to base and validates the result. A nil override
// returns base unchanged.
func Merge(base RuleSet, o *Overrides) (RuleSet, error) {
	if o == nil {
		return base, nil
	}
	merged := base
	if o.Conditions != nil {
		merged.Conditions = *o.Conditions
	}
	if o.QualityFactors != nil {
		merged.Scoring.QualityFactors = *o.QualityFactors
	}
	if o.TrustFactors != nil {
		merged.Scoring.TrustFactors = *o.TrustFactors
	}
	if err := merged.Validate(); err != nil {
		return RuleSet{}, err
	}
	return merged, nil
}
