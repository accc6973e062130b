package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/h2olabs/dcabot/internal/dca"
	"github.com/h2olabs/dcabot/internal/domain"
)

// PositionService is the slice of the lifecycle engine the HTTP API exposes.
type PositionService interface {
	Create(ctx context.Context, owner string, cfg dca.Config) (*domain.Position, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	Execute(ctx context.Context, id string) (bool, error)
	GetPosition(ctx context.Context, id string) (*domain.Position, error)
	GetUserPositions(ctx context.Context, owner string) ([]*domain.Position, error)
	GetActivePositions(ctx context.Context) ([]*domain.Position, error)
	History(ctx context.Context, id string, limit int) ([]*domain.ExecutionRecord, error)
	EstimateYield(ctx context.Context, id string) (*domain.YieldBreakdown, error)
}

// PositionHandler serves the position lifecycle endpoints.
type PositionHandler struct {
	svc    PositionService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(svc PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "position")),
	}
}

// createPositionRequest is the wire shape of a new position.
type createPositionRequest struct {
	Owner           string                   `json:"owner"`
	SourceToken     string                   `json:"sourceToken"`
	SourceDecimals  int                      `json:"sourceDecimals"`
	TargetTokens    []domain.TokenAllocation `json:"targetTokens"`
	AmountPerPeriod string                   `json:"amountPerPeriod"`
	Interval        string                   `json:"interval"`
	TotalPeriods    int                      `json:"totalPeriods"`
	Strategy        string                   `json:"strategy"`
	LimitPrice      string                   `json:"limitPrice,omitempty"`
}

// positionJSON is the wire shape of a position. Amounts are decimal strings
// in smallest units.
type positionJSON struct {
	ID              string                   `json:"id"`
	Owner           string                   `json:"owner"`
	SourceToken     string                   `json:"sourceToken"`
	TargetTokens    []domain.TokenAllocation `json:"targetTokens"`
	AmountPerPeriod string                   `json:"amountPerPeriod"`
	Interval        string                   `json:"interval"`
	IntervalMs      int64                    `json:"intervalMs"`
	TotalPeriods    int                      `json:"totalPeriods"`
	ExecutedPeriods int                      `json:"executedPeriods"`
	NextExecution   time.Time                `json:"nextExecution"`
	Strategy        string                   `json:"strategy"`
	LimitPrice      string                   `json:"limitPrice,omitempty"`
	TotalInvested   string                   `json:"totalInvested"`
	TotalAcquired   string                   `json:"totalAcquired"`
	AveragePrice    string                   `json:"averagePrice"`
	Status          string                   `json:"status"`
	CreatedAt       time.Time                `json:"createdAt"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

func toPositionJSON(p *domain.Position) positionJSON {
	out := positionJSON{
		ID:              p.ID,
		Owner:           p.Owner,
		SourceToken:     p.SourceToken,
		TargetTokens:    p.TargetTokens,
		AmountPerPeriod: p.AmountPerPeriod.String(),
		Interval:        string(p.Interval),
		IntervalMs:      p.IntervalMs,
		TotalPeriods:    p.TotalPeriods,
		ExecutedPeriods: p.ExecutedPeriods,
		NextExecution:   p.NextExecution,
		Strategy:        string(p.Strategy),
		TotalInvested:   p.TotalInvested.String(),
		TotalAcquired:   p.TotalAcquired.String(),
		AveragePrice:    p.AveragePrice.String(),
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.LimitPrice != nil {
		out.LimitPrice = p.LimitPrice.String()
	}
	return out
}

func toPositionListJSON(positions []*domain.Position) []positionJSON {
	out := make([]positionJSON, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionJSON(p))
	}
	return out
}

// CreatePosition registers a new plan.
// POST /api/positions
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	cfg := dca.Config{
		SourceToken:     req.SourceToken,
		SourceDecimals:  req.SourceDecimals,
		TargetTokens:    req.TargetTokens,
		AmountPerPeriod: req.AmountPerPeriod,
		Interval:        domain.Interval(req.Interval),
		TotalPeriods:    req.TotalPeriods,
		Strategy:        domain.Strategy(req.Strategy),
	}
	if req.LimitPrice != "" {
		v, ok := new(big.Int).SetString(req.LimitPrice, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, "malformed limitPrice")
			return
		}
		cfg.LimitPrice = v
	}

	pos, err := h.svc.Create(r.Context(), req.Owner, cfg)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toPositionJSON(pos))
}

// GetPosition returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.svc.GetPosition(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionJSON(pos))
}

// ListPositions returns an owner's positions.
// GET /api/positions?owner=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	positions, err := h.svc.GetUserPositions(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionListJSON(positions))
}

// ListActivePositions returns the scheduler's working set.
// GET /api/positions/active
func (h *PositionHandler) ListActivePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.GetActivePositions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionListJSON(positions))
}

// PausePosition suspends an active plan.
// POST /api/positions/{id}/pause
func (h *PositionHandler) PausePosition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Pause)
}

// ResumePosition reactivates a paused plan.
// POST /api/positions/{id}/resume
func (h *PositionHandler) ResumePosition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Resume)
}

// ClosePosition terminates a plan.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Close)
}

func (h *PositionHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	id := pathParam(r, "id")
	if err := op(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	pos, err := h.svc.GetPosition(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionJSON(pos))
}

// ExecutePosition triggers one period out of schedule, subject to the same
// due/strategy checks as the sweep.
// POST /api/positions/{id}/execute
func (h *PositionHandler) ExecutePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	executed, err := h.svc.Execute(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"executed": executed})
}

// executionJSON is the wire shape of one period execution.
type executionJSON struct {
	ID         string    `json:"id"`
	PositionID string    `json:"positionId"`
	Period     int       `json:"period"`
	AmountIn   string    `json:"amountIn"`
	AmountOut  string    `json:"amountOut"`
	Price      string    `json:"price"`
	TxHash     string    `json:"txHash,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`
}

// GetHistory returns a position's execution records, newest first.
// GET /api/positions/{id}/executions
func (h *PositionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.History(r.Context(), pathParam(r, "id"), parseLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]executionJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, executionJSON{
			ID:         rec.ID,
			PositionID: rec.PositionID,
			Period:     rec.Period,
			AmountIn:   rec.AmountIn.String(),
			AmountOut:  rec.AmountOut.String(),
			Price:      rec.Price.String(),
			TxHash:     rec.TxHash,
			ExecutedAt: rec.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetYield returns the modeled yield estimate for a position.
// GET /api/positions/{id}/yield
func (h *PositionHandler) GetYield(w http.ResponseWriter, r *http.Request) {
	y, err := h.svc.EstimateYield(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalInvested": y.TotalInvested.String(),
		"currentValue":  y.CurrentValue.String(),
		"totalYield":    y.TotalYield.String(),
		"apyBps":        y.APYBps,
	})
}
