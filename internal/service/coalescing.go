package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

// fetchCall is one upstream load that concurrent callers for the same key share.
type fetchCall struct {
	done   chan struct{}
	result models.Conditions
	err    error
}

// requestCoalescer collapses concurrent cache misses for the same key into a single upstream
// fetch. The dashboard, chat, warmer and alert checker all load the same saved locations.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*fetchCall
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*fetchCall),
		timeout:  timeout,
	}
}

// Do runs fn once per key among concurrent callers and hands every caller its result.
// shared reports whether this caller joined a fetch started by another.
// fn runs detached from the first caller's cancellation, bounded by the coalescer timeout,
// so one abandoned request does not fail the others waiting on it.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (models.Conditions, error)) (models.Conditions, bool, error) {
	rc.mu.Lock()
	call, shared := rc.inFlight[key]
	if !shared {
		call = &fetchCall{done: make(chan struct{})}
		rc.inFlight[key] = call
		go rc.run(ctx, key, call, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-call.done:
		return call.result, shared, call.err
	case <-waitCtx.Done():
		return models.Conditions{}, shared, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, call *fetchCall, fn func(context.Context) (models.Conditions, error)) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	call.result, call.err = fn(fetchCtx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(call.done)
}
