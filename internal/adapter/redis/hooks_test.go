package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBreakerObserver struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingBreakerObserver) BreakerTransition(state string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

type recordingCommandObserver struct {
	mu           sync.Mutex
	operations   []string
	errs         []error
	dialFailures int
}

func (r *recordingCommandObserver) ObserveCommand(operation string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation)
	r.errs = append(r.errs, err)
}

func (r *recordingCommandObserver) DialFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialFailures++
}

func failing(err error) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error { return err }
}

func TestCircuitBreakerHook_OpensAfterFailures(t *testing.T) {
	observer := &recordingBreakerObserver{}
	hook := NewCircuitBreakerHook(time.Minute, observer)
	process := hook.ProcessHook(failing(errors.New("connection refused")))
	ctx := context.Background()

	for range 5 {
		_ = process(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	called := false
	process = hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewStringCmd(ctx, "get", "k")
	err := process(ctx, cmd)

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"open"}, observer.states)
}

func TestCircuitBreakerHook_MissIsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(time.Minute, nil)
	process := hook.ProcessHook(failing(goredis.Nil))
	ctx := context.Background()

	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_DialAndPipeline(t *testing.T) {
	hook := NewCircuitBreakerHook(time.Minute, nil)
	ctx := context.Background()
	dialErr := errors.New("dial tcp: refused")

	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, dialErr
	})
	for range 5 {
		_, err := dial(ctx, "tcp", "localhost:6379")
		assert.ErrorIs(t, err, dialErr)
	}

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })
	err := pipeline(ctx, []goredis.Cmder{goredis.NewStatusCmd(ctx, "ping")})

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestMetricsHook_ObservesCommands(t *testing.T) {
	observer := &recordingCommandObserver{}
	hook := NewMetricsHook(observer)
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, hook.ProcessHook(failing(nil))(ctx, goredis.NewStringCmd(ctx, "get", "k")))
	require.ErrorIs(t, hook.ProcessHook(failing(boom))(ctx, goredis.NewStatusCmd(ctx, "set", "k", "v")), boom)
	require.NoError(t, hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })(ctx, nil))

	_, err := hook.DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, boom
	})(ctx, "tcp", "localhost:6379")
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"get", "set", "pipeline"}, observer.operations)
	assert.Equal(t, []error{nil, boom, nil}, observer.errs)
	assert.Equal(t, 1, observer.dialFailures)
}
