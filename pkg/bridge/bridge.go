package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrNotRunning is returned by Submit once the bridge has shut down.
var ErrNotRunning = errors.New("bridge: not running")

// DefaultMaxInFlight bounds concurrently executing work items.
const DefaultMaxInFlight = 64

// Work is a unit of blocking or network-bound work.
type Work func(ctx context.Context) (any, error)

// Options configures a Bridge.
type Options struct {
	MaxInFlight int
	Logger      zerolog.Logger
}

type job struct {
	id     uint64
	work   Work
	ctx    context.Context
	result chan result
}

type result struct {
	value any
	err   error
}

// Bridge accepts work from any goroutine and runs it on its own long-lived
// context, returning each result to the submitting caller.
type Bridge struct {
	ctx    context.Context
	cancel context.CancelFunc

	submissions chan *job
	group       *errgroup.Group
	done        chan struct{}

	seq      atomic.Uint64
	inFlight atomic.Int64

	shutdownOnce sync.Once
	logger       zerolog.Logger
}

// New starts the dispatcher and waits until it is accepting work.
func New(opts Options) (*Bridge, error) {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.MaxInFlight)

	b := &Bridge{
		ctx:         gctx,
		cancel:      cancel,
		submissions: make(chan *job),
		group:       group,
		done:        make(chan struct{}),
		logger:      opts.Logger.With().Str("component", "bridge").Logger(),
	}

	ready := make(chan struct{})
	go b.dispatch(ready)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		cancel()
		return nil, fmt.Errorf("bridge: dispatcher did not start")
	}

	b.logger.Debug().Int("max_in_flight", opts.MaxInFlight).Msg("Execution bridge started")
	return b, nil
}

func (b *Bridge) dispatch(ready chan<- struct{}) {
	defer close(b.done)
	close(ready)

	for {
		select {
		case <-b.ctx.Done():
			_ = b.group.Wait()
			return
		case j := <-b.submissions:
			if b.ctx.Err() != nil {
				observability.RecordBridgeRejected()
				j.result <- result{err: ErrNotRunning}
				continue
			}
			b.group.Go(func() error {
				b.execute(j)
				return nil
			})
		}
	}
}

func (b *Bridge) execute(j *job) {
	ctx, span := tracing.StartSpan(j.ctx, "bridge.execute", attribute.Int64("job_id", int64(j.id)))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, b.logger)

	runCtx, cancel := context.WithCancel(ctx)
	stopCancel := context.AfterFunc(b.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	observability.SetBridgeInFlight(int(b.inFlight.Add(1)))
	defer func() { observability.SetBridgeInFlight(int(b.inFlight.Add(-1))) }()

	start := time.Now()
	value, err := runSafely(runCtx, j.work)
	duration := time.Since(start)

	j.result <- result{value: value, err: err}

	observability.RecordBridgeTask(duration, err == nil)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Debug().Uint64("job", j.id).Dur("duration", duration).Err(err).Msg("Work failed")
	} else {
		logger.Debug().Uint64("job", j.id).Dur("duration", duration).Msg("Work completed")
	}
}

func runSafely(ctx context.Context, w Work) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge: work panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return w(ctx)
}

// Submit runs w on the bridge and blocks until it finishes or ctx is done.
// The work's context is cancelled when either ctx or the bridge ends.
func (b *Bridge) Submit(ctx context.Context, w Work) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.ctx.Err() != nil {
		observability.RecordBridgeRejected()
		return nil, ErrNotRunning
	}

	j := &job{
		id:     b.seq.Add(1),
		work:   w,
		ctx:    ctx,
		result: make(chan result, 1),
	}

	select {
	case b.submissions <- j:
	case <-b.ctx.Done():
		observability.RecordBridgeRejected()
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.result:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run submits fn and returns its typed result.
func Run[T any](ctx context.Context, b *Bridge, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := b.Submit(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if t, ok := v.(T); ok {
			return t, err
		}
		return zero, err
	}
	t, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("bridge: unexpected result type %T", v)
	}
	return t, nil
}

// IsRunning reports whether the bridge accepts work.
func (b *Bridge) IsRunning() bool {
	return b.ctx.Err() == nil
}

// InFlight returns the number of work items currently executing.
func (b *Bridge) InFlight() int {
	return int(b.inFlight.Load())
}

// Shutdown stops accepting work, cancels running work and waits for it to
// return or for ctx to end. It is safe to call more than once.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		b.logger.Debug().Int("in_flight", b.InFlight()).Msg("Execution bridge shutting down")
		b.cancel()
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
