package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoundStatus is the operator view of the table.
type RoundStatus struct {
	RoundID            uint64    `json:"roundId"`
	Phase              string    `json:"phase"`
	PhaseEndsAtMs      int64     `json:"phaseEndsAtMs,omitempty"`
	Point              *uint8    `json:"point,omitempty"`
	Dice               *[2]uint8 `json:"dice,omitempty"`
	PendingSettlements []string  `json:"pendingSettlements"`
}

// HTTPHandler serves metrics, liveness and the table status.
func (app *App) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	r.Get("/livetable/round", app.handleRoundStatus)
	return r
}

func (app *App) handleRoundStatus(w http.ResponseWriter, _ *http.Request) {
	if app.LiveTable == nil {
		http.Error(w, "live table disabled", http.StatusServiceUnavailable)
		return
	}
	c := app.LiveTable.Coordinator
	round := c.Snapshot()
	status := RoundStatus{
		RoundID:            round.RoundID,
		Phase:              round.Phase.String(),
		Point:              round.Point,
		Dice:               round.Dice,
		PendingSettlements: c.PendingSettlements(),
	}
	if !round.PhaseEndsAt.IsZero() {
		status.PhaseEndsAtMs = round.PhaseEndsAt.UnixMilli()
	}
	if status.PendingSettlements == nil {
		status.PendingSettlements = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
