package pos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/shiftledger/internal/shift"
)

func testWindow() shift.Window {
	cal := shift.NewCalendar(time.FixedZone("ICT", 7*3600))
	return cal.Window(shift.MustParseDate("2025-01-10"))
}

func TestFetchDayPaginatesAndFiltersWindow(t *testing.T) {
	w := testWindow()
	var receiptCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		rw.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/receipts":
			receiptCalls.Add(1)
			if r.URL.Query().Get("cursor") == "" {
				_ = json.NewEncoder(rw).Encode(map[string]any{
					"items": []map[string]any{
						{"id": "r1", "closed_at": w.From.Add(time.Hour), "total": "120.50", "payment_type": "cash"},
						{"id": "r0", "closed_at": w.From.Add(-time.Minute), "total": "10", "payment_type": "cash"},
					},
					"next_cursor": "p2",
				})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "r2", "closed_at": w.To.Add(-time.Second), "total": 80, "payment_type": "grab",
						"lines": []map[string]any{{"sku": "B1", "category": "Burgers", "quantity": 2}}},
				},
			})
		case "/v1/shift-report":
			_, _ = rw.Write([]byte(`{"starting_cash":"1000","paid_outs":[{"category":"shopping","description":"ice","amount":"45.25"}]}`))
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Token: "secret", Timeout: time.Second}, nil)
	day, err := client.FetchDay(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, int32(2), receiptCalls.Load())
	require.Len(t, day.Receipts, 2)
	require.Equal(t, "r1", day.Receipts[0].ID)
	require.Equal(t, "120.5", day.Receipts[0].Total.String())
	require.Equal(t, int64(2), day.Receipts[1].Lines[0].Quantity)
	require.Equal(t, "1000", day.StartingCash.String())
	require.Len(t, day.Expenses, 1)
}

func TestFetchDayRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/receipts" && calls.Add(1) == 1 {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second, RetryCount: 2}, nil)
	day, err := client.FetchDay(context.Background(), testWindow())
	require.NoError(t, err)
	require.Empty(t, day.Receipts)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchDayErrors(t *testing.T) {
	_, err := NewClient(Config{}, nil).FetchDay(context.Background(), testWindow())
	require.True(t, errors.Is(err, ErrNotConfigured))

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad window"))
	}))
	defer srv.Close()

	_, err = NewClient(Config{BaseURL: srv.URL}, nil).FetchDay(context.Background(), testWindow())
	require.True(t, errors.Is(err, ErrUnauthorized))

	_, err = NewClient(Config{BaseURL: srv.URL, Token: "t"}, nil).FetchDay(context.Background(), testWindow())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "bad window", apiErr.Body)
}

func TestChannel(t *testing.T) {
	require.Equal(t, "cash", Channel(" CASH "))
	require.Equal(t, "qr", Channel("PromptPay"))
	require.Equal(t, "delivery", Channel("grab"))
	require.Equal(t, "other", Channel("card"))
}
