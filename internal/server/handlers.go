package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/open-format/rewarder/internal/discord"
	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/reward"
	"github.com/open-format/rewarder/internal/rules"
	"github.com/open-format/rewarder/internal/scoring"
	"github.com/open-format/rewarder/internal/store"
)

// maxBatchSize bounds one batch request.
const maxBatchSize = 100

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	coordinator         *reward.Coordinator
	baseRules           rules.RuleSet
	baseEngine          *scoring.Engine
	store               store.Store
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Coordinator         *reward.Coordinator
	BaseRules           rules.RuleSet
	Store               store.Store
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		coordinator:         d.Coordinator,
		baseRules:           d.BaseRules,
		baseEngine:          scoring.New(d.BaseRules),
		store:               d.Store,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleEvaluate handles POST /v1/evaluate.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	// A malformed URL is a resolution failure like any other: the locator
	// cannot be resolved to a message, whether it fails here or at the REST
	// fetch.
	ref, err := discord.ParseMessageURL(req.URL)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}

	engine, err := h.engineFor(req.Rules)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	outcome, err := h.coordinator.ProcessWith(r.Context(), ref, engine)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleEvaluateBatch handles POST /v1/evaluate/batch.
func (h *Handlers) HandleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateBatchRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "urls must not be empty")
		return
	}
	if len(req.URLs) > maxBatchSize {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "too many urls in one batch")
		return
	}

	// Parse everything up front so malformed URLs surface as per-entry
	// errors without consuming a batch slot.
	entries := make([]model.BatchEntry, len(req.URLs))
	var refs []model.MessageRef
	var refIdx []int
	for i, raw := range req.URLs {
		entries[i].URL = raw
		ref, err := discord.ParseMessageURL(raw)
		if err != nil {
			entries[i].Error = err.Error()
			continue
		}
		refs = append(refs, ref)
		refIdx = append(refIdx, i)
	}

	processed, err := h.coordinator.ProcessAll(r.Context(), refs)
	if err != nil {
		h.writeProcessError(w, r, err)
		return
	}
	for j, entry := range processed {
		i := refIdx[j]
		entries[i].Outcome = entry.Outcome
		entries[i].Error = entry.Error
	}

	writeJSON(w, r, http.StatusOK, entries)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:  status,
		Version: h.version,
		Store:   storeStatus,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// engineFor returns the shared engine, or a per-request engine when the
// request carries rule overrides.
func (h *Handlers) engineFor(raw []byte) (*scoring.Engine, error) {
	if len(raw) == 0 {
		return h.baseEngine, nil
	}
	o, err := rules.DecodeOverrides(raw)
	if err != nil {
		return nil, err
	}
	merged, err := rules.Merge(h.baseRules, o)
	if err != nil {
		return nil, err
	}
	return scoring.New(merged), nil
}

func (h *Handlers) writeProcessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, discord.ErrNotResolvable):
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeResolutionFailed, err.Error())
	case errors.Is(err, reward.ErrIssuance):
		writeError(w, r, http.StatusBadGateway, model.ErrCodeIssuanceFailed, err.Error())
	default:
		h.logger.Error("evaluation failed",
			"error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}
