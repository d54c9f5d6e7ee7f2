package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// Store is the storage collaborator consumed by the apply phase. It is keyed
// uniquely by phone number and responsible for its own per-record write
// atomicity.
type Store interface {
	ListAll(ctx context.Context) ([]contact.Contact, error)
	Upsert(ctx context.Context, c contact.Contact) error
	DeleteByPhone(ctx context.Context, phone string) error
}

// Operation names used in failure records.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Failure records a single record that could not be applied.
type Failure struct {
	Phone  string
	Op     string
	Reason string
}

// Result reports the outcome of an apply run: counts plus the list of
// failures with reasons. Validation rejections from the plan are folded in so
// callers see one complete picture per run.
type Result struct {
	Inserted int
	Updated  int
	Deleted  int
	Failures []Failure
}

// Failed returns the number of records that did not apply.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Applier executes reconciliation plans against a store.
//
// Records within a phase are independent (uniquely keyed, no shared mutable
// state), so each phase fans out with bounded concurrency. Phases themselves
// stay strictly ordered: insert, then update, then delete. A later phase
// never starts before the previous one has finished or recorded its partial
// failures, otherwise a key deleted and re-added in the same run could race.
type Applier struct {
	Store Store

	// Concurrency bounds the fan-out per phase. Zero applies the default.
	Concurrency int

	// RecordTimeout bounds each individual storage operation. Timeout is a
	// per-record failure, never a batch abort: reconciliation is idempotent
	// and the next scheduled run retries.
	RecordTimeout time.Duration
}

// Apply executes the plan with at-least-effort, partial-success semantics.
// Individual storage failures are recorded and processing continues.
func (a *Applier) Apply(ctx context.Context, plan *Plan) *Result {
	concurrency := a.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultApplyConcurrency
	}
	timeout := a.RecordTimeout
	if timeout <= 0 {
		timeout = config.DefaultRecordTimeout
	}

	res := &Result{}
	for _, rej := range plan.Rejected {
		res.Failures = append(res.Failures, Failure{
			Phone:  rej.Phone,
			Op:     OpInsert,
			Reason: rej.Err.Error(),
		})
	}

	var mu sync.Mutex
	record := func(phone, op string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Failures = append(res.Failures, Failure{Phone: phone, Op: op, Reason: err.Error()})
			slog.Warn(config.MsgRecordFailed,
				config.LogKeyComponent, config.CompReconcile,
				config.LogKeyPhone, phone,
				config.LogKeyOp, op,
				config.LogKeyError, err,
			)
			return
		}
		switch op {
		case OpInsert:
			res.Inserted++
		case OpUpdate:
			res.Updated++
		case OpDelete:
			res.Deleted++
		}
	}

	perRecord := func(phone, op string, fn func(context.Context) error) func() error {
		return func() error {
			recCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			record(phone, op, fn(recCtx))
			return nil
		}
	}

	runPhase := func(n int, dispatch func(g *errgroup.Group)) {
		if n == 0 || ctx.Err() != nil {
			return
		}
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		dispatch(g)
		_ = g.Wait() // goroutines record failures instead of returning them
	}

	runPhase(len(plan.Insert), func(g *errgroup.Group) {
		for _, c := range plan.Insert {
			c := c // per-iteration copy for Go <1.22 capture semantics
			g.Go(perRecord(c.Phone, OpInsert, func(recCtx context.Context) error {
				return a.Store.Upsert(recCtx, c)
			}))
		}
	})

	runPhase(len(plan.Update), func(g *errgroup.Group) {
		for _, c := range plan.Update {
			c := c // per-iteration copy for Go <1.22 capture semantics
			g.Go(perRecord(c.Phone, OpUpdate, func(recCtx context.Context) error {
				return a.Store.Upsert(recCtx, c)
			}))
		}
	})

	runPhase(len(plan.Delete), func(g *errgroup.Group) {
		for _, phone := range plan.Delete {
			phone := phone // per-iteration copy for Go <1.22 capture semantics
			g.Go(perRecord(phone, OpDelete, func(recCtx context.Context) error {
				return a.Store.DeleteByPhone(recCtx, phone)
			}))
		}
	})

	slog.Info(config.MsgApplyDone,
		config.LogKeyComponent, config.CompReconcile,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyInserted, res.Inserted),
			slog.Int(config.LogKeyUpdated, res.Updated),
			slog.Int(config.LogKeyDeleted, res.Deleted),
			slog.Int(config.LogKeyFailed, res.Failed()),
		),
	)
	return res
}
