package comparisonhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/internal/comparison"
	"github.com/odyssey-erp/shiftledger/internal/shift"
)

type fakeService struct {
	synced []shift.Date
	getErr error
}

func (f *fakeService) Get(ctx context.Context, date shift.Date) (comparison.DailyComparison, error) {
	if f.getErr != nil {
		return comparison.DailyComparison{}, f.getErr
	}
	return comparison.DailyComparison{
		Date:            date,
		Availability:    comparison.AvailabilityMissingPOS,
		ReceiptEvidence: comparison.ReceiptEvidence{ReceiptStatus: comparison.POSUnavailable},
	}, nil
}

func (f *fakeService) Range(ctx context.Context, month string) ([]comparison.DailyComparison, error) {
	days, err := shift.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	out := make([]comparison.DailyComparison, 0, len(days))
	for _, d := range days {
		out = append(out, comparison.DailyComparison{Date: d, Availability: comparison.AvailabilityMissingBoth})
	}
	return out, nil
}

func (f *fakeService) Sync(ctx context.Context, date shift.Date) comparison.SyncResult {
	f.synced = append(f.synced, date)
	return comparison.SyncResult{Date: date, Status: comparison.SyncUpstreamError, Reason: "pos down", Message: "Could not reach the POS. Showing cached data."}
}

func serve(t *testing.T, svc Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestDailyComparison(t *testing.T) {
	rr := serve(t, &fakeService{}, http.MethodGet, "/api/analysis/daily-comparison?date=2025-01-10")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "2025-01-10", body["date"])
	require.Equal(t, "missing_pos", body["availability"])
	require.NotContains(t, body, "variance")
	require.Equal(t, "POS_UNAVAILABLE", body["receiptEvidence"].(map[string]any)["receiptStatus"])
}

func TestDailyComparisonErrors(t *testing.T) {
	rr := serve(t, &fakeService{}, http.MethodGet, "/api/analysis/daily-comparison?date=yesterday")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, &fakeService{getErr: errors.New("db down")}, http.MethodGet, "/api/analysis/daily-comparison?date=2025-01-10")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "db down")
}

func TestDailyComparisonRange(t *testing.T) {
	rr := serve(t, &fakeService{}, http.MethodGet, "/api/analysis/daily-comparison-range?month=2024-02")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 29)
	require.Equal(t, "2024-02-29", out[28]["date"])

	rr = serve(t, &fakeService{}, http.MethodGet, "/api/analysis/daily-comparison-range?month=2024-13")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyncAlwaysOK(t *testing.T) {
	svc := &fakeService{}
	rr := serve(t, svc, http.MethodPost, "/api/analysis/sync-pos-for-date?date=2025-01-10")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.synced, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, false, body["ok"])
	require.Equal(t, "upstream_error", body["status"])
	require.Equal(t, "pos down", body["reason"])

	rr = serve(t, svc, http.MethodPost, "/api/analysis/sync-pos-for-date?date=nope")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"invalid_date"`)
	require.Len(t, svc.synced, 1)
}
