package reconcile

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/cache"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"codeberg.org/aliassync/aliassync/pkg/metrics"
	"codeberg.org/aliassync/aliassync/pkg/store"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

type Status string

const (
	StatusDeleted Status = "deleted"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type Deletion struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

type Result struct {
	Login     string
	Plan      *Plan
	Deletions []Deletion
	// Changed reports whether the directory set differs from the one seen at
	// the previous sync of this login.
	Changed   bool
	Duration  time.Duration
}

func (r *Result) Failed() []Deletion {
	var out []Deletion
	for _, d := range r.Deletions {
		if d.Status == StatusFailed {
			out = append(out, d)
		}
	}
	return out
}

type Options struct {
	Concurrency int
	DryRun      bool
}

type Option func(*Engine)

func WithAudit(log *audit.Log) Option {
	return func(e *Engine) { e.audit = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithFingerprints(c *cache.Store) Option {
	return func(e *Engine) { e.fingerprints = c }
}

// Engine removes stored identities that the directory no longer lists. It
// never creates or updates identities.
type Engine struct {
	store        store.IdentityStore
	opts         Options
	logger       *zap.Logger
	audit        *audit.Log
	metrics      *metrics.Metrics
	fingerprints *cache.Store
}

func NewEngine(st store.IdentityStore, opts Options, logger *zap.Logger, options ...Option) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	e := &Engine{
		store:  st,
		opts:   opts,
		logger: logger.With(zap.String("component", "reconcile")),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Reconcile lists the stored identities of login and deletes those absent
// from d. When listing fails the returned result still carries d and an
// empty deletion set along with the error.
func (e *Engine) Reconcile(ctx context.Context, login string, d []identity.Identity) (*Result, error) {
	start := time.Now()
	logger := e.logger.With(zap.String("login", login))
	result := &Result{Login: login, Plan: NewPlan(d, nil)}

	if len(d) == 0 {
		e.audit.Record(audit.ActionNotFound, login, "", "", "no directory entry")
		return result, nil
	}

	e.audit.Record(audit.ActionFound, login, "", "", fmt.Sprintf("%d directory identities", len(d)))
	e.trackChange(logger, result)

	stored, err := e.store.ListIdentities(ctx, login)
	if err != nil {
		logger.Error("Failed to list stored identities", zap.Error(err))
		e.audit.RecordError(login, "", "", err)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("failed to list identities: %w", err)
	}

	result.Plan = NewPlan(d, stored)
	for _, s := range result.Plan.Keep {
		e.audit.Record(audit.ActionKeep, login, s.ID, s.Email, "")
	}

	logger.Info(
		"Calculated identity plan",
		zap.Int("directory", len(d)),
		zap.Int("stored", len(stored)),
		zap.Int("to_delete", len(result.Plan.Delete)),
	)

	if e.opts.DryRun {
		for _, s := range result.Plan.Delete {
			logger.Info("Dry run, identity not deleted", zap.String("identity", s.ID), zap.String("email", s.Email))
			e.audit.Record(audit.ActionDryRun, login, s.ID, s.Email, "")
			e.metrics.ObserveDeletion(string(StatusSkipped))
			result.Deletions = append(result.Deletions, Deletion{ID: s.ID, Email: s.Email, Status: StatusSkipped})
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Deletions = e.deleteAll(ctx, logger, login, result.Plan.Delete)
	result.Duration = time.Since(start)

	if failed := result.Failed(); len(failed) > 0 {
		logger.Warn("Some identities could not be deleted", zap.Int("failed", len(failed)))
	}

	return result, nil
}

func (e *Engine) trackChange(logger *zap.Logger, result *Result) {
	if e.fingerprints == nil {
		return
	}
	changed, err := e.fingerprints.Update(result.Login, result.Plan.Identities)
	if err != nil {
		logger.Warn("Failed to fingerprint directory identities", zap.Error(err))
		return
	}
	result.Changed = changed
	if changed {
		e.metrics.ObserveChange()
		logger.Debug("Directory identities changed since last sync")
	}
}

func (e *Engine) deleteAll(ctx context.Context, logger *zap.Logger, login string, targets []identity.StoredIdentity) []Deletion {
	failures := xsync.NewMap[string, error]()
	worker := newDeleteWorker(ctx, e.opts.Concurrency)

	for _, s := range targets {
		ok := worker.submit(func() {
			if err := e.store.DeleteIdentity(ctx, login, s.ID); err != nil {
				failures.Store(s.ID, err)
				logger.Error(
					"Failed to delete identity",
					zap.String("identity", s.ID),
					zap.String("email", s.Email),
					zap.Error(err),
				)
				e.audit.RecordError(login, s.ID, s.Email, err)
				return
			}
			logger.Info("Deleted identity", zap.String("identity", s.ID), zap.String("email", s.Email))
			e.audit.Record(audit.ActionDelete, login, s.ID, s.Email, "")
		})
		if !ok {
			failures.Store(s.ID, ctx.Err())
			e.audit.RecordError(login, s.ID, s.Email, ctx.Err())
		}
	}
	worker.wait()

	deletions := make([]Deletion, 0, len(targets))
	for _, s := range targets {
		d := Deletion{ID: s.ID, Email: s.Email, Status: StatusDeleted}
		if err, failed := failures.Load(s.ID); failed {
			d.Status = StatusFailed
			d.Err = err
		}
		e.metrics.ObserveDeletion(string(d.Status))
		deletions = append(deletions, d)
	}
	return deletions
}
