// Package worker runs the scheduled pipeline: fetch the external snapshot,
// reconcile it into the store, refresh the calendar feed, and deliver
// birthday reports.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
	"github.com/lbrossard/keeptouch/internal/engine"
	"github.com/lbrossard/keeptouch/internal/ics"
	"github.com/lbrossard/keeptouch/internal/notify"
	"github.com/lbrossard/keeptouch/internal/reconcile"
	"github.com/lbrossard/keeptouch/internal/report"
	"github.com/lbrossard/keeptouch/internal/source"
)

// CalendarSink receives the refreshed feed after each sync.
type CalendarSink interface {
	UpdateCalendar(data []byte)
}

// Worker wires the collaborators together. Every handle is injected; the
// worker owns no global state.
type Worker struct {
	Source    source.Source
	Store     reconcile.Store
	Clock     engine.Clock
	Formatter *report.Formatter
	Builder   *ics.Builder

	// Notifier is optional: nil disables delivery.
	Notifier notify.Notifier
	Channel  string

	// Calendar is optional: nil disables feed refresh.
	Calendar CalendarSink

	Interval      time.Duration
	Concurrency   int
	RecordTimeout time.Duration
	YearMetFloor  int
}

// Run executes a sync immediately, then on every tick until the context is
// cancelled. Sync failures are logged, never fatal: the next tick retries.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Duration(config.DefaultRefreshMin) * time.Minute
	}

	slog.Info(config.MsgWorkerStart,
		config.LogKeyComponent, config.CompWorker,
		config.LogKeyInterval, interval.String(),
	)

	if _, err := w.SyncOnce(ctx); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyError, err,
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info(config.MsgWorkerStop, config.LogKeyComponent, config.CompWorker)
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				slog.Error(config.ErrAppFailed,
					config.LogKeyComponent, config.CompWorker,
					config.LogKeyError, err,
				)
			}
		}
	}
}

// SyncOnce performs a full pipeline pass and returns the apply result.
func (w *Worker) SyncOnce(ctx context.Context) (*reconcile.Result, error) {
	start := time.Now()
	slog.Info(config.MsgSyncStarted, config.LogKeyComponent, config.CompWorker)

	external, err := w.Source.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrFetchSource, err)
	}

	local, err := w.Store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrListLocal, err)
	}

	now := w.Clock.Now()
	plan, err := reconcile.BuildPlan(local, external, reconcile.Options{
		YearMetFloor: w.YearMetFloor,
		Today:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrBuildPlan, err)
	}

	applier := &reconcile.Applier{
		Store:         w.Store,
		Concurrency:   w.Concurrency,
		RecordTimeout: w.RecordTimeout,
	}
	result := applier.Apply(ctx, plan)

	if err := w.refreshCalendar(ctx, now); err != nil {
		slog.Error(config.ErrICalEncode,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyError, err,
		)
	}

	w.deliverTodays(ctx, now)

	slog.Info(config.MsgSyncFinished,
		config.LogKeyComponent, config.CompWorker,
		config.LogKeyDuration, time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Render produces the report for a kind from the current store state. It
// implements the server's ReportSource.
func (w *Worker) Render(ctx context.Context, kind report.Kind) (string, error) {
	contacts, err := w.Store.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrListLocal, err)
	}

	now := w.Clock.Now()
	return w.Formatter.Format(w.classify(contacts, kind, now), kind, now.Format(config.DateFormatFullDash)), nil
}

func (w *Worker) classify(contacts []contact.Contact, kind report.Kind, now time.Time) []engine.Classification {
	switch kind {
	case report.KindToday:
		return engine.Todays(contacts, now)
	case report.KindMonth:
		return engine.ThisMonth(contacts, now)
	case report.KindUpcoming:
		return engine.Upcoming(contacts, now)
	default:
		return nil
	}
}

func (w *Worker) refreshCalendar(ctx context.Context, now time.Time) error {
	if w.Calendar == nil || w.Builder == nil {
		return nil
	}

	contacts, err := w.Store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrListLocal, err)
	}
	data, err := w.Builder.Build(contacts, now)
	if err != nil {
		return err
	}
	w.Calendar.UpdateCalendar(data)
	return nil
}

// deliverTodays sends the today report when at least one contact has a
// birthday; an empty day produces no message.
func (w *Worker) deliverTodays(ctx context.Context, now time.Time) {
	if w.Notifier == nil {
		return
	}

	contacts, err := w.Store.ListAll(ctx)
	if err != nil {
		slog.Error(config.ErrListLocal,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyError, err,
		)
		return
	}

	todays := engine.Todays(contacts, now)
	if len(todays) == 0 {
		return
	}

	text := w.Formatter.Format(todays, report.KindToday, now.Format(config.DateFormatFullDash))
	if err := w.Notifier.Send(ctx, w.Channel, text); err != nil {
		slog.Error(config.ErrDeliverReport,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyChannel, w.Channel,
			config.LogKeyError, err,
		)
	}
}
