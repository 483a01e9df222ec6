package taskory

import (
	"context"
	"time"
)

// speculation is one optimistic conversation-worker invocation raced
// against plan synthesis. The worker writes its sole result into a
// buffered channel, so it never blocks on an abandoned speculation, and
// the reconciling side either awaits the channel or cancels and walks
// away.
type speculation struct {
	cancel context.CancelFunc
	ch     chan workerResult
}

// startSpeculation launches the conversation worker for the message
// before the synthesizer has ruled on it. The result is identical to a
// non-speculative invocation; only the start time differs.
func startSpeculation(ctx context.Context, bound boundCapability, description string, inputs map[string]string, timeout time.Duration) *speculation {
	sctx, cancel := context.WithCancel(ctx)
	sp := &speculation{
		cancel: cancel,
		ch:     make(chan workerResult, 1),
	}

	w := spawnWorker(bound, description, inputs, timeout)
	go func() {
		sp.ch <- w.run(sctx)
	}()

	LoggerFromContext(ctx).Debug("speculative conversation started")
	return sp
}

// await blocks until the speculative worker finishes or the caller's
// context is done. The boolean reports whether a result was obtained.
func (sp *speculation) await(ctx context.Context) (workerResult, bool) {
	select {
	case res := <-sp.ch:
		return res, true
	case <-ctx.Done():
		sp.cancel()
		return workerResult{}, false
	}
}

// poll returns the result if the worker has already finished, without
// blocking.
func (sp *speculation) poll() (workerResult, bool) {
	select {
	case res := <-sp.ch:
		return res, true
	default:
		return workerResult{}, false
	}
}

// discard releases the speculation's derived context. It cancels an
// in-flight worker, and after completion it only frees the context; the
// buffered channel lets the worker goroutine exit regardless, and an
// already-polled result stays valid.
func (sp *speculation) discard() {
	sp.cancel()
}
