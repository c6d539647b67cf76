package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	_, err := r.Dispatch(ctx, EventUser2Email, LoginEvent{Login: "jdoe"})
	assert.ErrorIs(t, err, ErrNoHandler)

	var calls []string
	r.Register(EventUser2Email, HandlerFunc(func(ctx context.Context, e Event, in LoginEvent) LoginEvent {
		calls = append(calls, "first")
		in.Extended = true
		return in
	}))
	r.Register(EventUser2Email, HandlerFunc(func(ctx context.Context, e Event, in LoginEvent) LoginEvent {
		calls = append(calls, "second")
		assert.True(t, in.Extended)
		in.Abort = true
		return in
	}))
	r.Register(EventUser2Email, HandlerFunc(func(ctx context.Context, e Event, in LoginEvent) LoginEvent {
		calls = append(calls, "third")
		return in
	}))

	out, err := r.Dispatch(ctx, EventUser2Email, LoginEvent{Login: "jdoe"})
	require.NoError(t, err)
	assert.True(t, out.Abort)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, []Event{EventUser2Email}, r.Events())
}
