package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/adverra/marketplace/internal/campaigns/application"
	"github.com/adverra/marketplace/internal/campaigns/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("campaigns-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/campaigns", h.create)
	r.Get("/campaigns/{id}", h.get)
	r.Post("/campaigns/{id}/activate", h.activate)
	r.Post("/campaigns/{id}/complete", h.complete)
	r.Post("/campaigns/{id}/cancel", h.cancel)

	return r
}

type createReq struct {
	BrandID     string `json:"brand_id"`
	BloggerID   string `json:"blogger_id"`
	Title       string `json:"title"`
	BudgetCents int64  `json:"budget_cents"`
}

type campaignResp struct {
	ID          uuid.UUID `json:"id"`
	BrandID     string    `json:"brand_id"`
	BloggerID   string    `json:"blogger_id"`
	Title       string    `json:"title"`
	BudgetCents int64     `json:"budget_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResp(c *domain.Campaign) campaignResp {
	return campaignResp{
		ID:          c.ID,
		BrandID:     c.BrandID,
		BloggerID:   c.BloggerID,
		Title:       c.Title,
		BudgetCents: c.BudgetCents,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateCampaign")
	defer span.End()

	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c, err := h.service.Create(ctx, application.CreateCampaign{
		BrandID:     req.BrandID,
		BloggerID:   req.BloggerID,
		Title:       req.Title,
		BudgetCents: req.BudgetCents,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toResp(c))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCampaign")
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResp(c))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ActivateCampaign", h.service.Activate)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "CompleteCampaign", h.service.Complete)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelCampaign")
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var req cancelReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.service.Cancel(ctx, id, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, spanName string, cmd func(ctx context.Context, id uuid.UUID) error) {
	ctx, span := h.tracer.Start(r.Context(), spanName)
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	if err := cmd(ctx, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidCampaign):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("campaign request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
