package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/workcell/pkg/workcell"
)

// DefaultTimeout is the evaluation limit when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when an evaluation runs past its limit.
	ErrTimeout = errors.New("evaluation timed out")

	// ErrSuperseded is returned when a newer evaluation started while this
	// one was running.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

type evalResult struct {
	w      *workcell.Workcell
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch for at most limit. Results
// from an older generation are discarded.
//
// On timeout the evaluating goroutine may still be running; the
// generation check discards its result when it eventually completes.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	limit time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (*workcell.Workcell, []EvalError, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()
		if gen != current {
			return nil, nil, ErrSuperseded
		}
		return res.w, res.errors, res.err

	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, limit)
	}
}
