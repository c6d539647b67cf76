package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/cache"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEngine_Reconcile(t *testing.T) {
	ctx := context.Background()
	d := []identity.Identity{{Email: "a@x", Name: "A"}}

	t.Run("deletes absent identities", func(t *testing.T) {
		st := new(MockStore)
		st.On("ListIdentities", ctx, "jdoe").
			Return([]identity.StoredIdentity{stored("1", "a@x"), stored("2", "b@x")}, nil)
		st.On("DeleteIdentity", mock.Anything, "jdoe", "2").Return(nil)

		log := audit.NewLog()
		e := NewEngine(st, Options{}, zap.NewNop(), WithAudit(log))
		res, err := e.Reconcile(ctx, "jdoe", d)
		require.NoError(t, err)

		assert.Equal(t, d, res.Plan.Identities)
		require.Len(t, res.Deletions, 1)
		assert.Equal(t, Deletion{ID: "2", Email: "b@x", Status: StatusDeleted}, res.Deletions[0])
		assert.Equal(t, 1, log.Counts()["DELETE"])
		assert.Equal(t, 1, log.Counts()["KEEP"])
		st.AssertExpectations(t)
	})

	t.Run("empty directory never touches the store", func(t *testing.T) {
		st := new(MockStore)
		log := audit.NewLog()
		e := NewEngine(st, Options{}, zap.NewNop(), WithAudit(log))

		res, err := e.Reconcile(ctx, "jdoe", nil)
		require.NoError(t, err)
		assert.False(t, res.Plan.Found())
		assert.Empty(t, res.Deletions)
		assert.Equal(t, 1, log.Counts()["NOT_FOUND"])
		st.AssertNotCalled(t, "ListIdentities", mock.Anything, mock.Anything)
	})

	t.Run("partial deletion failure", func(t *testing.T) {
		st := new(MockStore)
		st.On("ListIdentities", ctx, "jdoe").
			Return([]identity.StoredIdentity{stored("2", "b@x"), stored("3", "c@x"), stored("4", "d@x")}, nil)
		st.On("DeleteIdentity", mock.Anything, "jdoe", "2").Return(nil)
		st.On("DeleteIdentity", mock.Anything, "jdoe", "3").Return(errors.New("locked"))
		st.On("DeleteIdentity", mock.Anything, "jdoe", "4").Return(nil)

		e := NewEngine(st, Options{Concurrency: 3}, zap.NewNop())
		res, err := e.Reconcile(ctx, "jdoe", d)
		require.NoError(t, err)

		require.Len(t, res.Deletions, 3)
		assert.Equal(t, StatusDeleted, res.Deletions[0].Status)
		assert.Equal(t, StatusFailed, res.Deletions[1].Status)
		assert.EqualError(t, res.Deletions[1].Err, "locked")
		assert.Equal(t, StatusDeleted, res.Deletions[2].Status)
		assert.Len(t, res.Failed(), 1)
		st.AssertExpectations(t)
	})

	t.Run("list failure keeps directory set", func(t *testing.T) {
		st := new(MockStore)
		st.On("ListIdentities", ctx, "jdoe").Return(nil, errors.New("db down"))

		e := NewEngine(st, Options{}, zap.NewNop())
		res, err := e.Reconcile(ctx, "jdoe", d)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, d, res.Plan.Identities)
		assert.Empty(t, res.Deletions)
		st.AssertNotCalled(t, "DeleteIdentity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("dry run", func(t *testing.T) {
		st := new(MockStore)
		st.On("ListIdentities", ctx, "jdoe").Return([]identity.StoredIdentity{stored("2", "b@x")}, nil)

		log := audit.NewLog()
		e := NewEngine(st, Options{DryRun: true}, zap.NewNop(), WithAudit(log))
		res, err := e.Reconcile(ctx, "jdoe", d)
		require.NoError(t, err)

		require.Len(t, res.Deletions, 1)
		assert.Equal(t, StatusSkipped, res.Deletions[0].Status)
		assert.Equal(t, 1, log.Counts()["DRY_RUN"])
		st.AssertNotCalled(t, "DeleteIdentity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		st := new(MockStore)
		st.On("ListIdentities", cctx, "jdoe").Return([]identity.StoredIdentity{stored("2", "b@x")}, nil)

		e := NewEngine(st, Options{}, zap.NewNop())
		res, err := e.Reconcile(cctx, "jdoe", d)
		require.NoError(t, err)
		require.Len(t, res.Deletions, 1)
		assert.Equal(t, StatusFailed, res.Deletions[0].Status)
		assert.ErrorIs(t, res.Deletions[0].Err, context.Canceled)
	})
}

func TestEngine_Fingerprints(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("ListIdentities", ctx, "jdoe").Return([]identity.StoredIdentity{stored("1", "a@x")}, nil)

	fp := cache.NewStore()
	e := NewEngine(st, Options{}, zap.NewNop(), WithFingerprints(fp))

	res, err := e.Reconcile(ctx, "jdoe", []identity.Identity{{Email: "a@x"}})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = e.Reconcile(ctx, "jdoe", []identity.Identity{{Email: "a@x"}})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = e.Reconcile(ctx, "jdoe", []identity.Identity{{Email: "a@x", Name: "New"}})
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

type slowStore struct {
	MockStore
	active, peak atomic.Int32
}

func (s *slowStore) DeleteIdentity(ctx context.Context, login, id string) error {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.active.Add(-1)
	return nil
}

func TestEngine_ConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	var toDelete []identity.StoredIdentity
	for _, id := range []string{"2", "3", "4", "5", "6", "7"} {
		toDelete = append(toDelete, stored(id, id+"@x"))
	}

	for _, concurrency := range []int{1, 2} {
		st := &slowStore{}
		st.On("ListIdentities", ctx, "jdoe").Return(toDelete, nil)

		e := NewEngine(st, Options{Concurrency: concurrency}, zap.NewNop())
		res, err := e.Reconcile(ctx, "jdoe", []identity.Identity{{Email: "a@x"}})
		require.NoError(t, err)
		assert.Len(t, res.Deletions, len(toDelete))
		assert.LessOrEqual(t, st.peak.Load(), int32(concurrency))
	}
}
