package hook

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/directory"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"codeberg.org/aliassync/aliassync/pkg/login"
	"codeberg.org/aliassync/aliassync/pkg/metrics"
	"codeberg.org/aliassync/aliassync/pkg/reconcile"
	"go.uber.org/zap"
)

// Syncer runs the login pipeline: login normalization, one directory
// lookup, identity normalization and reconciliation against the store.
type Syncer struct {
	logins     *login.Normalizer
	querier    *directory.Querier
	identities *identity.Normalizer
	engine     *reconcile.Engine
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewSyncer(
	logins *login.Normalizer,
	querier *directory.Querier,
	identities *identity.Normalizer,
	engine *reconcile.Engine,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Syncer {
	s := &Syncer{
		logins:     logins,
		querier:    querier,
		identities: identities,
		engine:     engine,
		metrics:    m,
		logger:     logger.With(zap.String("component", "hook")),
	}
	if m != nil {
		server := querier.Server()
		querier.OnLookup(func(d time.Duration) { m.ObserveLookup(server, d) })
	}
	return s
}

// Lookup resolves the directory identities of a login without touching the
// store.
func (s *Syncer) Lookup(ctx context.Context, raw string) (string, []identity.Identity, error) {
	key := s.logins.Normalize(raw)
	records, err := s.querier.Lookup(ctx, key)
	if err != nil {
		return key, nil, err
	}
	return key, s.identities.NormalizeAll(records), nil
}

// Sync looks up raw and reconciles the store. The result is nil unless the
// directory returned at least one entry.
func (s *Syncer) Sync(ctx context.Context, raw string) (Outcome, *reconcile.Result) {
	logger := s.logger.With(zap.String("login", raw))

	key, ids, err := s.Lookup(ctx, raw)
	if err != nil {
		fields := []zap.Field{zap.String("server", s.querier.Server()), zap.Error(err)}
		if derr, ok := directory.AsError(err); ok {
			fields = append(fields,
				zap.Uint16("code", derr.Code),
				zap.String("category", string(derr.Category)),
				zap.String("op", string(derr.Op)))
		}
		logger.Error("Directory lookup failed", fields...)
		s.metrics.ObserveSync(string(OutcomeDirectoryError))
		return Outcome{Kind: OutcomeDirectoryError, Err: err}, nil
	}

	if len(ids) == 0 {
		logger.Info("No directory entry found", zap.String("key", key))
		if _, err := s.engine.Reconcile(ctx, raw, nil); err != nil {
			logger.Warn("Reconcile failed", zap.Error(err))
		}
		s.metrics.ObserveSync(string(OutcomeNotFound))
		return Outcome{Kind: OutcomeNotFound}, nil
	}

	res, err := s.engine.Reconcile(ctx, raw, ids)
	if err != nil {
		logger.Warn("Identity store unavailable, returning directory identities only", zap.Error(err))
	}

	logger.Info(
		"Synchronized identities",
		zap.String("key", key),
		zap.Int("identities", len(ids)),
		zap.Int("deleted", len(res.Deletions)-len(res.Failed())),
		zap.Int("failed", len(res.Failed())),
		zap.Bool("changed", res.Changed),
	)
	s.metrics.ObserveSync(string(OutcomeFound))
	return Outcome{Kind: OutcomeFound, Identities: ids}, res
}

// Handle implements Handler for EventUser2Email. A panic anywhere in the
// pipeline is answered like a login with no directory identities.
func (s *Syncer) Handle(ctx context.Context, event Event, in LoginEvent) (out LoginEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in login hook",
				zap.String("event", string(event)),
				zap.String("login", in.Login),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
			out = Build(in, Outcome{Kind: OutcomeNotFound})
		}
	}()

	if event != EventUser2Email {
		return in
	}

	outcome, _ := s.Sync(ctx, in.Login)
	return Build(in, outcome)
}
