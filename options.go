package rewarder

import (
	"log/slog"

	"github.com/open-format/rewarder/internal/discord"
	"github.com/open-format/rewarder/internal/reward"
	"github.com/open-format/rewarder/internal/rules"
	"github.com/open-format/rewarder/internal/store"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port    int
	logger  *slog.Logger
	version string
	ruleSet *rules.RuleSet
	store   store.Store
	source  reward.Snapshotter
	issuer  reward.Issuer
}

// WithPort overrides the TCP port from config (REWARDER_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithRules replaces the rule set loaded from REWARDER_RULES_DIR and the
// embedded defaults. The rule set must already be validated.
func WithRules(rs rules.RuleSet) Option {
	return func(o *resolvedOptions) { o.ruleSet = &rs }
}

// WithStore replaces the reward store selected from config.
func WithStore(s store.Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithMessageSource replaces the Discord REST source. Useful for bots that
// already hold resolved messages, and for tests.
func WithMessageSource(s reward.Snapshotter) Option {
	return func(o *resolvedOptions) { o.source = s }
}

// WithIssuer replaces the reward issuer selected from config.
func WithIssuer(i reward.Issuer) Option {
	return func(o *resolvedOptions) { o.issuer = i }
}

// Snapshotter resolves message locators to snapshots.
type Snapshotter = reward.Snapshotter

// Issuer delivers qualified rewards to an external service.
type Issuer = reward.Issuer

// ParseMessageURL validates a Discord message link and extracts its locator.
func ParseMessageURL(raw string) (MessageRef, error) {
	return discord.ParseMessageURL(raw)
}
