package ledgerhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/internal/ledger"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

type fakeService struct {
	lodged     []ledger.LodgeInput
	overrides  []ledger.OverrideInput
	approved   string
	rangeArgs  []shift.Date
	approveErr error
}

func (f *fakeService) ShiftVariance(ctx context.Context, date shift.Date) ([]ledger.VarianceItem, error) {
	return []ledger.VarianceItem{
		{Name: "Burger rolls", Expected: 30, Used: 120, Variance: -2, Severity: "green"},
	}, nil
}

func (f *fakeService) Lodge(ctx context.Context, in ledger.LodgeInput) (ledger.Entry, error) {
	if err := in.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	f.lodged = append(f.lodged, in)
	return ledger.Entry{Commodity: in.Commodity, ShiftDate: in.ShiftDate, PurchasedQty: in.Items[0].Quantity, Status: ledger.StatusPending}, nil
}

func (f *fakeService) Range(ctx context.Context, c ledger.Commodity, start, end shift.Date) ([]ledger.Entry, error) {
	f.rangeArgs = []shift.Date{start, end}
	if start.After(end) {
		return nil, ledger.ErrInvalidRange
	}
	return []ledger.Entry{{Commodity: c, ShiftDate: end}, {Commodity: c, ShiftDate: start}}, nil
}

func (f *fakeService) ApplyOverride(ctx context.Context, in ledger.OverrideInput) (ledger.Entry, error) {
	f.overrides = append(f.overrides, in)
	return ledger.Entry{Commodity: in.Commodity, ShiftDate: in.ShiftDate}, nil
}

func (f *fakeService) Approve(ctx context.Context, c ledger.Commodity, date shift.Date, by string) (ledger.Entry, error) {
	if f.approveErr != nil {
		return ledger.Entry{}, f.approveErr
	}
	f.approved = by
	return ledger.Entry{Commodity: c, ShiftDate: date, Approved: true, ApprovedBy: by}, nil
}

func (f *fakeService) RecomputeAll(ctx context.Context, date shift.Date) ([]ledger.Entry, error) {
	return []ledger.Entry{{Commodity: ledger.CommodityRolls, ShiftDate: date}}, nil
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestShiftVarianceRequiresDate(t *testing.T) {
	h := newRouter(&fakeService{})

	rr := do(t, h, http.MethodGet, "/stock/variance/shift?date=2025-13-01", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/stock/variance/shift?date=2025-01-10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, "green", items[0]["severity"])
	require.Equal(t, float64(-2), items[0]["variance"])
}

func TestLodgeRolls(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPost, "/stock/lodge/rolls",
		`{"shiftDate":"2025-01-10","staffName":"Ann","rollsPurchased":100}`,
		"Idempotency-Key", "abc-1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.lodged, 1)
	require.Equal(t, ledger.CommodityRolls, svc.lodged[0].Commodity)
	require.Equal(t, int64(100), svc.lodged[0].Items[0].Quantity)
	require.Equal(t, "abc-1", svc.lodged[0].IdempotencyKey)
	require.Contains(t, rr.Body.String(), `"purchasedQty":100`)
}

func TestLodgeRejectsNonPositiveQuantity(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPost, "/stock/lodge/rolls", `{"shiftDate":"2025-01-10","staffName":"Ann","rollsPurchased":-3}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Validation Failed")

	rr = do(t, h, http.MethodPost, "/stock/lodge/meat", `{"shiftDate":"2025-01-10","staffName":"Ann","kilosPurchased":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/stock/lodge/drinks", `{"shiftDate":"2025-01-10","staffName":"Ann","items":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/stock/lodge/rolls", `{"shiftDate":"10/01/2025","staffName":"Ann","rollsPurchased":3}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/stock/lodge/rolls", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, svc.lodged)
}

func TestLodgeMeatConvertsKilograms(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPost, "/stock/lodge/meat", `{"shiftDate":"2025-01-10","staffName":"Ann","kilosPurchased":2.35}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, ledger.CommodityMeat, svc.lodged[0].Commodity)
	require.Equal(t, int64(2350), svc.lodged[0].Items[0].Quantity)
}

func TestLodgeDrinksKeepsItems(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPost, "/stock/lodge/drinks",
		`{"shiftDate":"2025-01-10","staffName":"Ann","items":[{"sku":"COKE","quantity":24},{"sku":"WATER","quantity":12}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.lodged[0].Items, 2)
	require.Equal(t, "WATER", svc.lodged[0].Items[1].SKU)
}

func TestLedgerRange(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodGet, "/stock/ledger/meat?start=2025-01-01&end=2025-01-31", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2025-01-01", svc.rangeArgs[0].String())
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Equal(t, "2025-01-31", entries[0]["shiftDate"])

	rr = do(t, h, http.MethodGet, "/stock/ledger/meat?start=2025-02-01&end=2025-01-31", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/stock/ledger/fries?start=2025-01-01&end=2025-01-31", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverrideAndClear(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPut, "/stock/ledger/rolls/2025-01-10/override",
		`{"actualEndQty":28,"clear":["purchasedQty"],"note":"recount","staffName":"Mgr"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.overrides, 1)
	in := svc.overrides[0]
	require.Equal(t, int64(28), *in.ActualEndQty)
	require.Nil(t, in.PurchasedQty)
	require.True(t, in.ClearPurchased)
	require.False(t, in.ClearActualEnd)
	require.Equal(t, "Mgr", in.By)

	rr = do(t, h, http.MethodPut, "/stock/ledger/rolls/2025-01-10/override", `{"clear":["startQty"],"staffName":"Mgr"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/stock/ledger/rolls/2025-01-10/override", `{"actualEndQty":-1,"staffName":"Mgr"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestApprove(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(svc)

	rr := do(t, h, http.MethodPost, "/stock/ledger/drinks/2025-01-10/approve", `{"approvedBy":"Mgr"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Mgr", svc.approved)

	svc.approveErr = ledger.ErrEntryNotFound
	rr = do(t, h, http.MethodPost, "/stock/ledger/drinks/2025-01-11/approve", `{"approvedBy":"Mgr"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecompute(t *testing.T) {
	h := newRouter(&fakeService{})

	rr := do(t, h, http.MethodPost, "/stock/ledger/recompute?date=2025-01-10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"shiftDate":"2025-01-10"`)

	rr = do(t, h, http.MethodPost, "/stock/ledger/recompute", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
