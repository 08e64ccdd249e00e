package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/shiftledger/internal/ledger"
	"github.com/odyssey-erp/shiftledger/internal/platform/httpx"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

// Service is the ledger behaviour the handlers expose.
type Service interface {
	ShiftVariance(ctx context.Context, date shift.Date) ([]ledger.VarianceItem, error)
	Lodge(ctx context.Context, in ledger.LodgeInput) (ledger.Entry, error)
	Range(ctx context.Context, c ledger.Commodity, start, end shift.Date) ([]ledger.Entry, error)
	ApplyOverride(ctx context.Context, in ledger.OverrideInput) (ledger.Entry, error)
	Approve(ctx context.Context, c ledger.Commodity, date shift.Date, by string) (ledger.Entry, error)
	RecomputeAll(ctx context.Context, date shift.Date) ([]ledger.Entry, error)
}

// Handler wires stock ledger JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Get("/variance/shift", h.shiftVariance)
		r.Post("/lodge/rolls", h.lodgeRolls)
		r.Post("/lodge/meat", h.lodgeMeat)
		r.Post("/lodge/drinks", h.lodgeDrinks)
		r.Post("/ledger/recompute", h.recompute)
		r.Get("/ledger/{commodity}", h.ledgerRange)
		r.Put("/ledger/{commodity}/{date}/override", h.override)
		r.Post("/ledger/{commodity}/{date}/approve", h.approve)
	})
}

type lodgeRollsRequest struct {
	ShiftDate      string `json:"shiftDate" validate:"required"`
	StaffName      string `json:"staffName" validate:"required,max=120"`
	RollsPurchased int64  `json:"rollsPurchased" validate:"gt=0"`
}

type lodgeMeatRequest struct {
	ShiftDate      string  `json:"shiftDate" validate:"required"`
	StaffName      string  `json:"staffName" validate:"required,max=120"`
	KilosPurchased float64 `json:"kilosPurchased" validate:"gt=0"`
}

type drinkItem struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

type lodgeDrinksRequest struct {
	ShiftDate string      `json:"shiftDate" validate:"required"`
	StaffName string      `json:"staffName" validate:"required,max=120"`
	Items     []drinkItem `json:"items" validate:"required,min=1,dive"`
}

type overrideRequest struct {
	PurchasedQty *int64   `json:"purchasedQty" validate:"omitempty,gte=0"`
	ActualEndQty *int64   `json:"actualEndQty" validate:"omitempty,gte=0"`
	Clear        []string `json:"clear" validate:"omitempty,dive,oneof=purchasedQty actualEndQty"`
	Note         string   `json:"note" validate:"max=500"`
	StaffName    string   `json:"staffName" validate:"required,max=120"`
}

type approveRequest struct {
	ApprovedBy string `json:"approvedBy" validate:"required,max=120"`
}

var gramsPerKilo = decimal.NewFromInt(1000)

func (h *Handler) shiftVariance(w http.ResponseWriter, r *http.Request) {
	date, err := shift.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	items, err := h.service.ShiftVariance(r.Context(), date)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) lodgeRolls(w http.ResponseWriter, r *http.Request) {
	var req lodgeRollsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.lodge(w, r, ledger.CommodityRolls, req.ShiftDate, req.StaffName, []ledger.ReceiptItem{
		{SKU: "rolls", Quantity: req.RollsPurchased},
	})
}

func (h *Handler) lodgeMeat(w http.ResponseWriter, r *http.Request) {
	var req lodgeMeatRequest
	if !h.decode(w, r, &req) {
		return
	}
	grams := decimal.NewFromFloat(req.KilosPurchased).Mul(gramsPerKilo).Round(0).IntPart()
	if grams <= 0 {
		h.fail(w, ledger.ErrInvalidQuantity)
		return
	}
	h.lodge(w, r, ledger.CommodityMeat, req.ShiftDate, req.StaffName, []ledger.ReceiptItem{
		{SKU: "meat", Quantity: grams},
	})
}

func (h *Handler) lodgeDrinks(w http.ResponseWriter, r *http.Request) {
	var req lodgeDrinksRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]ledger.ReceiptItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ledger.ReceiptItem{SKU: item.SKU, Quantity: item.Quantity})
	}
	h.lodge(w, r, ledger.CommodityDrinks, req.ShiftDate, req.StaffName, items)
}

func (h *Handler) lodge(w http.ResponseWriter, r *http.Request, c ledger.Commodity, rawDate, staff string, items []ledger.ReceiptItem) {
	date, err := shift.ParseDate(rawDate)
	if err != nil {
		h.fail(w, err)
		return
	}
	entry, err := h.service.Lodge(r.Context(), ledger.LodgeInput{
		Commodity:      c,
		ShiftDate:      date,
		StaffName:      staff,
		Items:          items,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) ledgerRange(w http.ResponseWriter, r *http.Request) {
	c, err := ledger.ParseCommodity(chi.URLParam(r, "commodity"))
	if err != nil {
		h.fail(w, err)
		return
	}
	start, err := shift.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		h.fail(w, err)
		return
	}
	end, err := shift.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		h.fail(w, err)
		return
	}
	entries, err := h.service.Range(r.Context(), c, start, end)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	c, date, ok := h.rowKey(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := ledger.OverrideInput{
		Commodity:    c,
		ShiftDate:    date,
		PurchasedQty: req.PurchasedQty,
		ActualEndQty: req.ActualEndQty,
		Note:         req.Note,
		By:           req.StaffName,
	}
	for _, field := range req.Clear {
		switch field {
		case "purchasedQty":
			in.ClearPurchased = true
		case "actualEndQty":
			in.ClearActualEnd = true
		}
	}
	entry, err := h.service.ApplyOverride(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	c, date, ok := h.rowKey(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Approve(r.Context(), c, date, req.ApprovedBy)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	date, err := shift.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	entries, err := h.service.RecomputeAll(r.Context(), date)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) rowKey(w http.ResponseWriter, r *http.Request) (ledger.Commodity, shift.Date, bool) {
	c, err := ledger.ParseCommodity(chi.URLParam(r, "commodity"))
	if err != nil {
		h.fail(w, err)
		return "", shift.Date{}, false
	}
	date, err := shift.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, err)
		return "", shift.Date{}, false
	}
	return c, date, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, httpx.Invalid(errors.New("malformed JSON body")))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, httpx.Invalid(err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shift.ErrInvalidDate),
		errors.Is(err, ledger.ErrInvalidCommodity),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidRange):
		httpx.RespondError(w, httpx.Invalid(err))
	case errors.Is(err, ledger.ErrEntryNotFound):
		httpx.RespondError(w, httpx.Missing(err))
	default:
		h.logger.Error("stock ledger request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
