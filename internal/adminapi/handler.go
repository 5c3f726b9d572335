// Package adminapi exposes the operator surface for the delivery machinery:
// dead envelopes, failed inbox records and manual requeue.
package adminapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	searchapp "github.com/adverra/marketplace/internal/search/application"
	"github.com/adverra/marketplace/pkg/inbox"
	"github.com/adverra/marketplace/pkg/outbox"
)

const defaultListLimit = 100

type Handler struct {
	log    *slog.Logger
	outbox *outbox.Store
	inbox  *inbox.Store
	search searchapp.Index
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, ob *outbox.Store, ib *inbox.Store, search searchapp.Index) *Handler {
	return &Handler{
		log:    log,
		outbox: ob,
		inbox:  ib,
		search: search,
		tracer: otel.Tracer("admin-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/outbox/failed", h.failedEnvelopes)
	r.Post("/outbox/{id}/retry", h.retryEnvelope)
	r.Get("/inbox/failed", h.failedRecords)
	r.Get("/search/campaigns", h.searchCampaigns)

	return r
}

func (h *Handler) failedEnvelopes(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListFailedEnvelopes")
	defer span.End()

	envs, err := h.outbox.Failed(ctx, limitParam(r))
	if err != nil {
		h.log.Error("list failed envelopes", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"envelopes": envs})
}

func (h *Handler) retryEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RetryEnvelope")
	defer span.End()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid envelope id", http.StatusBadRequest)
		return
	}

	switch err := h.outbox.Retry(ctx, id); {
	case errors.Is(err, outbox.ErrNotDead):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		h.log.Error("retry envelope", "envelope_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		h.log.Info("envelope requeued", "envelope_id", id)
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Handler) failedRecords(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListFailedInboxRecords")
	defer span.End()

	recs, err := h.inbox.Failed(ctx, limitParam(r))
	if err != nil {
		h.log.Error("list failed inbox records", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"records": recs})
}

func (h *Handler) searchCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SearchCampaigns")
	defer span.End()

	docs, err := h.search.Find(ctx, r.URL.Query().Get("q"), r.URL.Query().Get("status"), limitParam(r))
	if err != nil {
		h.log.Error("search campaigns", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"campaigns": docs})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
