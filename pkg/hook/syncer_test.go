package hook

import (
	"context"
	"errors"
	"testing"

	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/directory"
	"codeberg.org/aliassync/aliassync/pkg/directory/directorytest"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"codeberg.org/aliassync/aliassync/pkg/login"
	"codeberg.org/aliassync/aliassync/pkg/metrics"
	"codeberg.org/aliassync/aliassync/pkg/reconcile"
	"codeberg.org/aliassync/aliassync/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testAttrs = identity.Attributes{Mail: "mail", Name: "cn", Organization: "o", Signature: "signature"}

type fixture struct {
	dir     *directorytest.Directory
	store   *store.MemoryStore
	audit   *audit.Log
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
	syncer  *Syncer
}

func newFixture(t *testing.T, records ...directory.Record) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		dir:     &directorytest.Directory{Records: records},
		store:   store.NewMemoryStore(),
		audit:   audit.NewLog(),
		metrics: metrics.New(),
		logs:    logs,
	}

	querier := directory.NewQuerier(f.dir, directory.QueryConfig{
		BaseDN:     "dc=example,dc=com",
		Filter:     "(uid=%s)",
		Attributes: testAttrs.List(),
	}, logger)
	engine := reconcile.NewEngine(f.store, reconcile.Options{}, logger,
		reconcile.WithAudit(f.audit), reconcile.WithMetrics(f.metrics))

	f.syncer = NewSyncer(
		login.NewNormalizer(login.Options{RemoveDomain: true, ImpersonateSeparator: "*"}, logger),
		querier,
		identity.NewNormalizer(testAttrs, "example.com"),
		engine,
		f.metrics,
		logger,
	)
	return f
}

func record(mail, cn string) directory.Record {
	return directory.NewRecord("uid=x,dc=example,dc=com", map[string][]string{
		"mail": {mail},
		"cn":   {cn},
	})
}

func TestSyncer_Handle_Found(t *testing.T) {
	f := newFixture(t, record("a", "Alice"), record("b@example.com", "Alice B"))
	f.store.Put("jdoe*admin@example.com",
		identity.StoredIdentity{ID: "1", Identity: identity.Identity{Email: "a@example.com"}},
		identity.StoredIdentity{ID: "2", Identity: identity.Identity{Email: "old@example.com"}},
	)

	out := f.syncer.Handle(context.Background(), EventUser2Email, LoginEvent{
		Login: "jdoe*admin@example.com",
		First: true,
		Email: "jdoe@example.com",
	})

	assert.True(t, out.Extended)
	assert.False(t, out.First)
	assert.False(t, out.Abort)
	assert.Equal(t, []identity.Identity{
		{Email: "a@example.com", Name: "Alice"},
		{Email: "b@example.com", Name: "Alice B"},
	}, out.Email)

	searches := f.dir.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, "(uid=jdoe)", searches[0].Filter)
	assert.Equal(t, "dc=example,dc=com", searches[0].BaseDN)
	assert.Equal(t, 1, f.dir.Opened())
	assert.Equal(t, 1, f.dir.Closed())

	remaining, err := f.store.ListIdentities(context.Background(), "jdoe*admin@example.com")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "1", remaining[0].ID)

	assert.Equal(t, 1, f.audit.Counts()["DELETE"])
	assert.Equal(t, 1.0, syncCount(t, f.metrics, OutcomeFound))
}

func TestSyncer_Handle_NotFound(t *testing.T) {
	f := newFixture(t)
	f.store.Put("jdoe",
		identity.StoredIdentity{ID: "1", Identity: identity.Identity{Email: "a@example.com"}},
		identity.StoredIdentity{ID: "2", Identity: identity.Identity{Email: "b@example.com"}},
	)

	in := LoginEvent{Login: "jdoe", First: true, Email: "jdoe@example.com"}
	out := f.syncer.Handle(context.Background(), EventUser2Email, in)

	assert.Equal(t, LoginEvent{Login: "jdoe", Extended: true, Email: "jdoe@example.com"}, out)

	remaining, err := f.store.ListIdentities(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	assert.Equal(t, 1, f.logs.FilterMessage("No directory entry found").Len())
	assert.Equal(t, 1.0, syncCount(t, f.metrics, OutcomeNotFound))
}

func TestSyncer_Handle_DirectoryError(t *testing.T) {
	f := newFixture(t)
	f.dir.OpenErr = &directory.Error{
		Op:       directory.OpBind,
		Server:   "ldap://directorytest:389",
		Code:     49,
		Category: directory.CategoryAuthentication,
		Message:  "Invalid Credentials",
	}
	f.store.Put("jdoe",
		identity.StoredIdentity{ID: "1", Identity: identity.Identity{Email: "a@example.com"}},
		identity.StoredIdentity{ID: "2", Identity: identity.Identity{Email: "b@example.com"}},
	)

	in := LoginEvent{Login: "jdoe", First: true, Email: "jdoe@example.com"}
	out := f.syncer.Handle(context.Background(), EventUser2Email, in)

	assert.True(t, out.Abort)
	assert.Equal(t, "jdoe@example.com", out.Email)

	remaining, err := f.store.ListIdentities(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	entries := f.logs.FilterMessage("Directory lookup failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ldap://directorytest:389", fields["server"])
	assert.EqualValues(t, 49, fields["code"])
	assert.Equal(t, "authentication", fields["category"])
	assert.Equal(t, 1.0, syncCount(t, f.metrics, OutcomeDirectoryError))
}

func TestSyncer_Handle_StoreListFailure(t *testing.T) {
	f := newFixture(t, record("a@example.com", "Alice"))
	f.syncer.engine = reconcile.NewEngine(failingStore{}, reconcile.Options{}, zap.NewNop())

	out := f.syncer.Handle(context.Background(), EventUser2Email, LoginEvent{Login: "jdoe"})
	assert.False(t, out.Abort)
	assert.Equal(t, []identity.Identity{{Email: "a@example.com", Name: "Alice"}}, out.Email)
}

func TestSyncer_Handle_Panic(t *testing.T) {
	f := newFixture(t)
	f.dir.Panic = "boom"

	in := LoginEvent{Login: "jdoe", First: true, Email: "jdoe@example.com"}
	out := f.syncer.Handle(context.Background(), EventUser2Email, in)

	assert.Equal(t, LoginEvent{Login: "jdoe", Extended: true, Email: "jdoe@example.com"}, out)
	assert.Equal(t, 1, f.logs.FilterMessage("Recovered from panic in login hook").Len())
	assert.Equal(t, 1, f.dir.Closed())
}

func TestSyncer_Handle_OtherEvent(t *testing.T) {
	f := newFixture(t, record("a@example.com", "Alice"))
	in := LoginEvent{Login: "jdoe", First: true}

	assert.Equal(t, in, f.syncer.Handle(context.Background(), Event("login_after"), in))
	assert.Equal(t, 0, f.dir.Opened())
}

func TestSyncer_Lookup(t *testing.T) {
	f := newFixture(t, record("a", "Alice"))
	f.store.Put("jdoe", identity.StoredIdentity{ID: "9", Identity: identity.Identity{Email: "z@example.com"}})

	key, ids, err := f.syncer.Lookup(context.Background(), "jdoe@other.org")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", key)
	assert.Equal(t, []identity.Identity{{Email: "a@example.com", Name: "Alice"}}, ids)

	remaining, err := f.store.ListIdentities(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

type failingStore struct{}

func (failingStore) ListIdentities(context.Context, string) ([]identity.StoredIdentity, error) {
	return nil, errors.New("database is locked")
}

func (failingStore) DeleteIdentity(context.Context, string, string) error {
	return errors.New("database is locked")
}

func (failingStore) Close() error { return nil }

func syncCount(t *testing.T, m *metrics.Metrics, outcome OutcomeKind) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "aliassync_syncs_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == string(outcome) {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
