package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued per event and tier",
		},
		[]string{"event_id", "tier"},
	)

	ticketsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_consumed_total",
			Help: "Total tickets marked used per event and tier",
		},
		[]string{"event_id", "tier"},
	)

	validationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_attempts_total",
			Help: "Total validation attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	tierRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tier_remaining_capacity",
			Help: "Remaining ticket capacity per event and tier",
		},
		[]string{"event_id", "tier"},
	)
)

// TrackIssued counts a successful issuance.
func TrackIssued(eventID, tier string) {
	ticketsIssued.WithLabelValues(eventID, tier).Inc()
}

// TrackConsumed counts a successful active -> used transition.
func TrackConsumed(eventID, tier string) {
	ticketsConsumed.WithLabelValues(eventID, tier).Inc()
}

// TrackValidation counts one validation attempt outcome.
func TrackValidation(channel, result string) {
	validationAttempts.WithLabelValues(channel, result).Inc()
}

// Monitor periodically refreshes the remaining-capacity gauges from the
// tier allocation table.
type Monitor struct {
	app core.App
}

func NewMonitor(app core.App) *Monitor {
	return &Monitor{app: app}
}

func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectCapacity()
		}
	}
}

func (m *Monitor) collectCapacity() {
	var rows []struct {
		Event     string  `db:"event"`
		Tier      string  `db:"tier"`
		Remaining float64 `db:"remaining"`
	}
	err := m.app.DB().NewQuery(
		"SELECT event, tier, max - sold AS remaining FROM tier_allocations WHERE active = 1",
	).All(&rows)
	if err != nil {
		slog.Error("monitoring: collect capacity", "error", err)
		return
	}

	for _, row := range rows {
		if row.Event == "" || row.Tier == "" {
			continue
		}
		remaining := row.Remaining
		if remaining < 0 {
			remaining = 0
		}
		tierRemaining.WithLabelValues(row.Event, row.Tier).Set(remaining)
	}
}
