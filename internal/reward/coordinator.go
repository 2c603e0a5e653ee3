package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/scoring"
	"github.com/open-format/rewarder/internal/store"
	"github.com/open-format/rewarder/internal/telemetry"
)

// Snapshotter resolves a message locator into a read-only snapshot.
// Implemented by the discord package; stubbed in tests.
type Snapshotter interface {
	Snapshot(ctx context.Context, ref model.MessageRef) (model.MessageSnapshot, error)
}

// Coordinator runs the full decision-to-issuance pipeline: score the
// snapshot, gate, reserve the identity, call the external reward API, and
// persist the outcome record.
type Coordinator struct {
	engine  *scoring.Engine
	guard   *Guard
	source  Snapshotter
	issuer  Issuer
	agentID string
	// selfUserID is the evaluating agent's platform user id; messages it
	// authored are skipped before any scoring.
	selfUserID string
	// issueTimeout bounds the external reward call. Zero means the caller's
	// context is the only bound.
	issueTimeout time.Duration
	logger       *slog.Logger

	evaluations metric.Int64Counter
	rewarded    metric.Int64Counter
	duplicates  metric.Int64Counter
}

// CoordinatorConfig holds the coordinator's collaborators.
type CoordinatorConfig struct {
	Engine       *scoring.Engine
	Guard        *Guard
	Source       Snapshotter
	Issuer       Issuer
	AgentID      string
	SelfUserID   string
	IssueTimeout time.Duration
	Logger       *slog.Logger
}

// NewCoordinator wires a coordinator and registers its meters.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	meter := telemetry.Meter("rewarder/reward")
	evaluations, _ := meter.Int64Counter("rewarder.evaluations")
	rewarded, _ := meter.Int64Counter("rewarder.rewards_issued")
	duplicates, _ := meter.Int64Counter("rewarder.duplicates_suppressed")

	return &Coordinator{
		engine:       cfg.Engine,
		guard:        cfg.Guard,
		source:       cfg.Source,
		issuer:       cfg.Issuer,
		agentID:      cfg.AgentID,
		selfUserID:   cfg.SelfUserID,
		issueTimeout: cfg.IssueTimeout,
		logger:       cfg.Logger,
		evaluations:  evaluations,
		rewarded:     rewarded,
		duplicates:   duplicates,
	}
}

// Process resolves, scores, and — when the message qualifies and has not
// been rewarded before — issues the reward for one message.
//
// Pipeline errors are value outcomes: resolution and issuance failures are
// returned to the caller with no reward recorded; a duplicate is a normal
// non-rewarding outcome with zero external calls.
func (c *Coordinator) Process(ctx context.Context, ref model.MessageRef) (model.EvaluationOutcome, error) {
	snap, err := c.source.Snapshot(ctx, ref)
	if err != nil {
		return model.EvaluationOutcome{}, fmt.Errorf("resolve %s: %w", ref.MessageID, err)
	}
	return c.ProcessSnapshot(ctx, snap)
}

// ProcessWith is Process with a per-call engine (merged rule overrides).
func (c *Coordinator) ProcessWith(ctx context.Context, ref model.MessageRef, engine *scoring.Engine) (model.EvaluationOutcome, error) {
	snap, err := c.source.Snapshot(ctx, ref)
	if err != nil {
		return model.EvaluationOutcome{}, fmt.Errorf("resolve %s: %w", ref.MessageID, err)
	}
	return c.process(ctx, snap, engine)
}

// ProcessSnapshot runs the pipeline on an already-resolved snapshot,
// optionally with a per-call engine carrying merged rule overrides.
func (c *Coordinator) ProcessSnapshot(ctx context.Context, snap model.MessageSnapshot) (model.EvaluationOutcome, error) {
	return c.process(ctx, snap, c.engine)
}

// ProcessSnapshotWith is ProcessSnapshot with a per-call engine (merged
// rule overrides).
func (c *Coordinator) ProcessSnapshotWith(ctx context.Context, snap model.MessageSnapshot, engine *scoring.Engine) (model.EvaluationOutcome, error) {
	return c.process(ctx, snap, engine)
}

func (c *Coordinator) process(ctx context.Context, snap model.MessageSnapshot, engine *scoring.Engine) (model.EvaluationOutcome, error) {
	c.evaluations.Add(ctx, 1)

	if c.selfUserID != "" && snap.AuthorID == c.selfUserID {
		return model.EvaluationOutcome{Ref: snap.Ref, Reason: model.ReasonSelfMessage}, nil
	}

	score := engine.Evaluate(snap)
	outcome := model.EvaluationOutcome{Ref: snap.Ref, Score: score}

	if !score.MeetsConditions {
		outcome.Reason = model.ReasonConditionsNotMet
		return outcome, nil
	}

	key := IdentityOf(snap.Ref.MessageID, c.agentID, snap.AuthorID)
	if err := c.guard.Reserve(ctx, key); err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			c.duplicates.Add(ctx, 1)
			c.logger.Info("reward already processed, skipping",
				"message_id", snap.Ref.MessageID,
				"author_id", snap.AuthorID,
			)
			outcome.Reason = model.ReasonDuplicate
			return outcome, nil
		}
		return model.EvaluationOutcome{}, fmt.Errorf("reserve reward: %w", err)
	}

	issueCtx := ctx
	if c.issueTimeout > 0 {
		var cancel context.CancelFunc
		issueCtx, cancel = context.WithTimeout(ctx, c.issueTimeout)
		defer cancel()
	}

	receipt, err := c.issuer.Issue(issueCtx, snap.Ref, score)
	if err != nil {
		// Release on failure so a later retry can succeed. The release uses
		// a fresh bounded context: the caller's may already be cancelled,
		// and a stuck reservation blocks that message permanently.
		relCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if relErr := c.guard.Release(relCtx, key); relErr != nil {
			c.logger.Error("failed to release reservation after issuance failure",
				"error", relErr,
				"message_id", snap.Ref.MessageID,
			)
		}
		return model.EvaluationOutcome{}, err
	}

	rec := model.ProcessedReward{
		Key:         key,
		Ref:         snap.Ref,
		AuthorID:    snap.AuthorID,
		Score:       score,
		Receipt:     receipt,
		ProcessedAt: time.Now().UTC(),
	}
	// Finalize in a bounded background context: the reward is already
	// issued, and correctness must not hinge on the request context
	// surviving to the persistence step.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.guard.Finalize(finCtx, key, rec); err != nil {
		c.logger.Error("failed to finalize reward record — reservation left pending",
			"error", err,
			"message_id", snap.Ref.MessageID,
		)
	}

	c.rewarded.Add(ctx, 1)
	c.logger.Info("message rewarded",
		"message_id", snap.Ref.MessageID,
		"author_id", snap.AuthorID,
		"quality_score", score.QualityScore,
		"trust_score", score.TrustScore,
	)

	outcome.Rewarded = true
	outcome.Receipt = &receipt
	return outcome, nil
}

// batchParallelism bounds concurrent snapshot fetches in ProcessAll.
const batchParallelism = 8

// ProcessAll evaluates a batch of locators concurrently. Per-message
// failures land in the entry's Error field; the batch itself only fails on
// context cancellation.
func (c *Coordinator) ProcessAll(ctx context.Context, refs []model.MessageRef) ([]model.BatchEntry, error) {
	entries := make([]model.BatchEntry, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := c.Process(gctx, ref)
			if err != nil {
				entries[i] = model.BatchEntry{Error: err.Error()}
				return nil
			}
			entries[i] = model.BatchEntry{Outcome: &outcome}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
