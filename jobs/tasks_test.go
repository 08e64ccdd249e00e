package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestTaskConstructors(t *testing.T) {
	task, err := NewLedgerRecomputeTask("2025-01-10")
	require.NoError(t, err)
	require.Equal(t, TaskLedgerRecompute, task.Type())
	var lp LedgerRecomputePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &lp))
	require.Equal(t, "2025-01-10", lp.Date)

	task, err = NewPOSSyncTask("")
	require.NoError(t, err)
	require.Equal(t, TaskPOSSync, task.Type())
	require.JSONEq(t, `{}`, string(task.Payload()))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, rr.Body.String())
}
