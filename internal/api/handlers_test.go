package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/objextract/internal/extraction"
	"github.com/kdimtricp/objextract/internal/ledger"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	led, err := ledger.NewFileLedger(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, led.MarkDone(ledger.Key{Dataset: "avenue", Split: "train"}, "01.avi"))
	require.NoError(t, led.MarkDone(ledger.Key{Dataset: "avenue", Split: "train"}, "02.avi"))
	require.NoError(t, led.MarkDone(ledger.Key{Dataset: "avenue", Split: "train"}, "01.avi"))

	return &App{
		Progress: &extraction.Progress{},
		Ledger:   led,
		RunID:    "run-7",
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestApp(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusHandler(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body["run_id"])
	assert.Equal(t, false, body["finished"])
	assert.Contains(t, body, "stats")
}

func TestLedgerHandler(t *testing.T) {
	router := NewRouter(newTestApp(t))

	tests := []struct {
		path    string
		sources []string
	}{
		{"/ledger/avenue/train", []string{"01.avi", "02.avi"}},
		{"/ledger/avenue/test", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			var body ledgerResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.sources, body.Sources)
			assert.Equal(t, len(tt.sources), body.Count)
		})
	}
}
