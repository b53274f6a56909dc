package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/objextract/internal/extraction"
	"github.com/kdimtricp/objextract/internal/ledger"
)

// App serves read-only views of a running extraction.
type App struct {
	Progress *extraction.Progress
	Ledger   ledger.Ledger
	RunID    string
	Logger   *slog.Logger
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type statusResponse struct {
	RunID string `json:"run_id"`
	extraction.ProgressSnapshot
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{RunID: app.RunID}
	if app.Progress != nil {
		resp.ProgressSnapshot = app.Progress.Snapshot()
	}
	app.writeJSON(w, http.StatusOK, resp)
}

type ledgerResponse struct {
	Dataset string   `json:"dataset"`
	Split   string   `json:"split"`
	Count   int      `json:"count"`
	Sources []string `json:"sources"`
}

func (app *App) LedgerHandler(w http.ResponseWriter, r *http.Request) {
	key := ledger.Key{
		Dataset: chi.URLParam(r, "dataset"),
		Split:   chi.URLParam(r, "split"),
	}

	entries, err := app.Ledger.Entries(key)
	if err != nil {
		app.logger().ErrorContext(r.Context(), "failed to read ledger",
			slog.String("key", key.String()), slog.Any("error", err))
		http.Error(w, "Failed to read ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []string{}
	}

	app.writeJSON(w, http.StatusOK, ledgerResponse{
		Dataset: key.Dataset,
		Split:   key.Split,
		Count:   len(entries),
		Sources: entries,
	})
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger().Error("failed to encode response", slog.Any("error", err))
	}
}

func (app *App) logger() *slog.Logger {
	if app.Logger != nil {
		return app.Logger
	}
	return slog.Default()
}
