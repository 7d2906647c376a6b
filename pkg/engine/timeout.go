package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/buildx/pkg/scene"
)

// EvalTimeout is the hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// evalResult passes evaluation results through channels.
type evalResult struct {
	graph  *scene.Graph
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds EvalTimeout or ctx is done first. When stale
// is non-nil and reports true once the result arrives, the result is
// discarded.
//
// On timeout the goroutine may still be running; its buffered send lets it
// finish without a receiver.
func waitWithTimeout(ctx context.Context, ch <-chan evalResult, stale func() bool) (*scene.Graph, []EvalError, error) {
	timer := time.NewTimer(EvalTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if stale != nil && stale() {
			return nil, nil, fmt.Errorf("evaluation superseded by newer request")
		}
		return res.graph, res.errors, res.err

	case <-timer.C:
		return nil, nil, fmt.Errorf("evaluation timed out after %s", EvalTimeout)

	case <-ctx.Done():
		return nil, nil, fmt.Errorf("evaluation cancelled: %w", ctx.Err())
	}
}
