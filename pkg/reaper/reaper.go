// Package reaper implements the background liveness sweep that evicts
// unresponsive neighbours, grounded in the original project's
// neighbour garbage collector (spec.md §4.5).
package reaper

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/neighbours"
)

var logger = logging.Logger("kipa/reaper")

// Defaults mirror the original project's GC constants.
const (
	DefaultFrequency      = 30 * time.Second
	DefaultNumRetries     = 3
	DefaultRetryFrequency = 10 * time.Second
)

// VerifyFunc sends a liveness check (a Verify request) to node and
// reports whether it succeeded.
type VerifyFunc func(ctx context.Context, node api.Node) error

// Reaper periodically verifies every stored neighbour is still alive,
// retrying a failed check up to NumRetries times (each separated by
// RetryFrequency) before evicting the neighbour from Store. Each
// sweep's wait is jittered between 0.5x and 2x Frequency so that
// independently-started nodes do not all sweep in lockstep.
type Reaper struct {
	store  *neighbours.Store
	verify VerifyFunc

	frequency      time.Duration
	numRetries     int
	retryFrequency time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Reaper. Non-positive frequency/numRetries/
// retryFrequency fall back to their defaults.
func New(store *neighbours.Store, verify VerifyFunc, frequency time.Duration, numRetries int, retryFrequency time.Duration) *Reaper {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}
	if numRetries <= 0 {
		numRetries = DefaultNumRetries
	}
	if retryFrequency <= 0 {
		retryFrequency = DefaultRetryFrequency
	}
	return &Reaper{
		store:          store,
		verify:         verify,
		frequency:      frequency,
		numRetries:     numRetries,
		retryFrequency: retryFrequency,
		stop:           make(chan struct{}),
	}
}

func jitter(d time.Duration) time.Duration {
	factor := 0.5 + rand.Float64()*1.5
	return time.Duration(float64(d) * factor)
}

// Start launches the sweep loop in the background. ctx cancellation or
// Stop both end it.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop ends the sweep loop and waits for any in-flight liveness checks
// to return.
func (r *Reaper) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		timer := time.NewTimer(jitter(r.frequency))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.stop:
			timer.Stop()
			return
		case <-timer.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	nodes := r.store.GetAll()
	logger.Debugw("checking neighbour liveness", "count", len(nodes))
	for _, n := range nodes {
		r.wg.Add(1)
		go r.check(ctx, n)
	}
}

func (r *Reaper) check(ctx context.Context, node api.Node) {
	defer r.wg.Done()

	retriesLeft := r.numRetries
	for {
		if err := r.verify(ctx, node); err == nil {
			return
		}

		if retriesLeft <= 0 {
			logger.Infow("evicting unresponsive neighbour", "node", node.String())
			r.store.RemoveByKeyID(node.Key.ID())
			return
		}
		logger.Debugw("neighbour failed verification, retrying", "node", node.String(), "retries_left", retriesLeft)
		retriesLeft--

		timer := time.NewTimer(r.retryFrequency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
