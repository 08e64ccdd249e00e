package comparisonhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/shiftledger/internal/comparison"
	"github.com/odyssey-erp/shiftledger/internal/platform/httpx"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Service is the comparison behaviour the handlers expose.
type Service interface {
	Get(ctx context.Context, date shift.Date) (comparison.DailyComparison, error)
	Range(ctx context.Context, month string) ([]comparison.DailyComparison, error)
	Sync(ctx context.Context, date shift.Date) comparison.SyncResult
}

// Handler wires daily comparison endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/analysis", func(r chi.Router) {
		r.Get("/daily-comparison", h.daily)
		r.Get("/daily-comparison-range", h.monthly)
		r.Post("/sync-pos-for-date", h.sync)
	})
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	date, err := shift.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.RespondError(w, httpx.Invalid(err))
		return
	}
	cmp, err := h.service.Get(r.Context(), date)
	if err != nil {
		h.logger.Error("daily comparison", slog.String("date", date.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cmp)
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Range(r.Context(), r.URL.Query().Get("month"))
	if errors.Is(err, shift.ErrInvalidMonth) {
		httpx.RespondError(w, httpx.Invalid(err))
		return
	}
	if err != nil {
		h.logger.Error("daily comparison range", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// sync always answers 200; the body says whether it worked.
func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	date, err := shift.ParseDate(raw)
	if err != nil {
		httpx.JSON(w, http.StatusOK, comparison.InvalidDate(raw, err))
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.Sync(r.Context(), date))
}
