package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	dbt "checkmate/db/db"
)

// StartTripStatusRoller schedules a daily job that advances trip statuses
// past their date boundaries (Upcoming to Ongoing, Ongoing to Finished).
// It also runs once at startup so a restarted server catches up
// immediately.
func StartTripStatusRoller(store dbt.TripStore, log *slog.Logger) *cron.Cron {
	if log == nil {
		log = slog.Default()
	}

	roll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		changed, err := store.RollTripStatuses(ctx, time.Now().UTC())
		if err != nil {
			log.Error("trip status roll failed", "error", err)
			return
		}
		if changed > 0 {
			log.Info("rolled trip statuses", "trips_changed", changed)
		}
	}

	roll()

	c := cron.New()
	// shortly after midnight UTC, when date boundaries move
	if _, err := c.AddFunc("5 0 * * *", roll); err != nil {
		log.Error("failed to schedule trip status roller", "error", err)
		return c
	}
	c.Start()
	return c
}
