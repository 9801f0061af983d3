// Package jobs runs long operations such as imports and exports off the
// edit loop. A job works on immutable inputs and hands back a result; it
// never touches the live workcell.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/chazu/workcell/pkg/logging"
)

var (
	// ErrUnknownHandle is returned for handles the runner never issued or
	// has already forgotten.
	ErrUnknownHandle = errors.New("unknown job handle")

	// ErrCanceled is the failure recorded for a canceled job. Its result,
	// if any, is discarded.
	ErrCanceled = errors.New("job canceled")

	// ErrClosed is recorded for jobs submitted after Close.
	ErrClosed = errors.New("job runner closed")
)

// Handle identifies a submitted job.
type Handle string

// State is the lifecycle stage of a job.
type State int

const (
	Pending State = iota
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of a job. Result is set when State is Done and Err
// when State is Failed.
type Status struct {
	Name   string
	State  State
	Result any
	Err    error
}

// Job is the unit of work. It should return promptly once ctx is done.
type Job func(ctx context.Context) (any, error)

// Runner is the asynchronous job contract the editor depends on.
type Runner interface {
	Submit(ctx context.Context, name string, job Job) Handle
	Poll(h Handle) (Status, error)
	Cancel(h Handle) error
	Wait(ctx context.Context, h Handle) (Status, error)
	// Forget releases a finished job's record and result.
	Forget(h Handle)
}

// Config configures a Pool.
type Config struct {
	// Concurrency bounds the jobs running at once. Zero means GOMAXPROCS.
	Concurrency int
	Logger      logging.Logger
}

type task struct {
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool is a Runner backed by goroutines and a weighted semaphore.
type Pool struct {
	sem *semaphore.Weighted
	log logging.Logger

	mu     sync.Mutex
	tasks  map[Handle]*task
	closed bool
	wg     sync.WaitGroup
}

var _ Runner = (*Pool)(nil)

// NewPool creates a pool.
func NewPool(cfg Config) *Pool {
	n := cfg.Concurrency
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(n)),
		log:   logging.OrNop(cfg.Logger),
		tasks: make(map[Handle]*task),
	}
}

// Submit starts job and returns its handle immediately. The job waits for
// a free slot before running.
func (p *Pool) Submit(ctx context.Context, name string, job Job) Handle {
	h := Handle(uuid.NewString())
	ctx, cancel := context.WithCancel(ctx)
	t := &task{status: Status{Name: name}, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.tasks[h] = t
	if p.closed {
		p.mu.Unlock()
		p.finish(h, t, nil, ErrClosed)
		return h
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.finish(h, t, nil, ErrCanceled)
			return
		}
		defer p.sem.Release(1)

		p.log.Debug("job started", "job", name, "handle", h)
		res, err := run(ctx, job)
		if ctx.Err() != nil {
			res, err = nil, ErrCanceled
		}
		p.finish(h, t, res, err)
	}()
	return h
}

func run(ctx context.Context, job Job) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func (p *Pool) finish(h Handle, t *task, res any, err error) {
	p.mu.Lock()
	if err != nil {
		t.status.State = Failed
		t.status.Err = err
	} else {
		t.status.State = Done
		t.status.Result = res
	}
	st := t.status
	p.mu.Unlock()
	t.cancel()
	close(t.done)

	if err != nil {
		p.log.Debug("job failed", "job", st.Name, "handle", h, "error", err)
	} else {
		p.log.Debug("job done", "job", st.Name, "handle", h)
	}
}

func (p *Pool) lookup(h Handle) (*task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[h]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, ErrUnknownHandle)
	}
	return t, nil
}

// Poll returns the current status of a job without blocking.
func (p *Pool) Poll(h Handle) (Status, error) {
	t, err := p.lookup(h)
	if err != nil {
		return Status{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return t.status, nil
}

// Cancel asks a job to stop. A job that is still pending ends as Failed
// with ErrCanceled; a finished job is unaffected.
func (p *Pool) Cancel(h Handle) error {
	t, err := p.lookup(h)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (p *Pool) Wait(ctx context.Context, h Handle) (Status, error) {
	t, err := p.lookup(h)
	if err != nil {
		return Status{}, err
	}
	select {
	case <-t.done:
		return p.Poll(h)
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Forget drops a finished job's record. Pending jobs are kept.
func (p *Pool) Forget(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tasks[h]; ok && t.status.State != Pending {
		delete(p.tasks, h)
	}
}

// Close cancels every pending job and waits for all goroutines to exit.
// Later submissions fail with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	for _, t := range p.tasks {
		t.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
