package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, p *Pool, h Handle) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := p.Wait(ctx, h)
	require.NoError(t, err)
	return st
}

func TestSubmitDone(t *testing.T) {
	p := NewPool(Config{Concurrency: 2})
	defer p.Close()

	h := p.Submit(context.Background(), "answer", func(context.Context) (any, error) { return 42, nil })
	st := waitFor(t, p, h)
	assert.Equal(t, Done, st.State)
	assert.Equal(t, 42, st.Result)
	assert.Equal(t, "answer", st.Name)
	assert.NoError(t, st.Err)
}

func TestSubmitFailed(t *testing.T) {
	p := NewPool(Config{})
	defer p.Close()

	boom := errors.New("boom")
	h := p.Submit(context.Background(), "fail", func(context.Context) (any, error) { return "partial", boom })
	st := waitFor(t, p, h)
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.Err, boom)
	assert.Nil(t, st.Result)
}

func TestPanicBecomesFailure(t *testing.T) {
	p := NewPool(Config{})
	defer p.Close()

	h := p.Submit(context.Background(), "panic", func(context.Context) (any, error) { panic("bad input") })
	st := waitFor(t, p, h)
	assert.Equal(t, Failed, st.State)
	assert.Contains(t, st.Err.Error(), "bad input")
}

func TestPollPending(t *testing.T) {
	p := NewPool(Config{Concurrency: 1})
	defer p.Close()

	release := make(chan struct{})
	h := p.Submit(context.Background(), "slow", func(context.Context) (any, error) {
		<-release
		return "ok", nil
	})
	st, err := p.Poll(h)
	require.NoError(t, err)
	assert.Equal(t, Pending, st.State)

	close(release)
	assert.Equal(t, Done, waitFor(t, p, h).State)
}

func TestCancelDiscardsResult(t *testing.T) {
	p := NewPool(Config{Concurrency: 1})
	defer p.Close()

	started := make(chan struct{})
	h := p.Submit(context.Background(), "import", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return "late result", nil
	})
	<-started
	require.NoError(t, p.Cancel(h))

	st := waitFor(t, p, h)
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.Err, ErrCanceled)
	assert.Nil(t, st.Result)
}

func TestConcurrencyBound(t *testing.T) {
	p := NewPool(Config{Concurrency: 2})
	defer p.Close()

	var running, peak atomic.Int32
	release := make(chan struct{})
	var hs []Handle
	for i := 0; i < 6; i++ {
		hs = append(hs, p.Submit(context.Background(), "work", func(context.Context) (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil, nil
		}))
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, h := range hs {
		assert.Equal(t, Done, waitFor(t, p, h).State)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCancelQueuedJob(t *testing.T) {
	p := NewPool(Config{Concurrency: 1})
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	first := p.Submit(context.Background(), "first", func(context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started
	var ran atomic.Bool
	queued := p.Submit(context.Background(), "queued", func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, p.Cancel(queued))
	st := waitFor(t, p, queued)
	assert.ErrorIs(t, st.Err, ErrCanceled)

	close(release)
	waitFor(t, p, first)
	assert.False(t, ran.Load(), "canceled job ran")
}

func TestUnknownHandle(t *testing.T) {
	p := NewPool(Config{})
	defer p.Close()

	_, err := p.Poll("nope")
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, p.Cancel("nope"), ErrUnknownHandle)

	h := p.Submit(context.Background(), "x", func(context.Context) (any, error) { return nil, nil })
	waitFor(t, p, h)
	p.Forget(h)
	_, err = p.Poll(h)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestClose(t *testing.T) {
	p := NewPool(Config{Concurrency: 1})
	h := p.Submit(context.Background(), "blocked", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p.Close()

	st, err := p.Poll(h)
	require.NoError(t, err)
	assert.ErrorIs(t, st.Err, ErrCanceled)

	late := p.Submit(context.Background(), "late", func(context.Context) (any, error) { return 1, nil })
	st = waitFor(t, p, late)
	assert.ErrorIs(t, st.Err, ErrClosed)
}

func TestWaitContext(t *testing.T) {
	p := NewPool(Config{})
	defer p.Close()

	h := p.Submit(context.Background(), "forever", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
