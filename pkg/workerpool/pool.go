// Package workerpool implements the fixed-size worker pool KIPA uses
// to bound concurrency for search neighbour-fetches, grounded in the
// original project's thread manager (spawn onto a pool sized from CPU
// count). Incoming requests do not go through a pool: the transport
// servers handle each connection on its own goroutine.
package workerpool

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// CPUMultiplier is how much the default pool size multiplies the
// detected CPU count by, matching the original project's
// NUM_CPUS_MULTIPLIER.
const CPUMultiplier = 2

// Pool runs submitted jobs on a fixed number of goroutines, queueing
// overflow. Queue depth and active-worker count are exported as
// Prometheus gauges labelled by name.
type Pool struct {
	name     string
	capacity int
	jobs     chan func()
	done     chan struct{}

	queueDepth  prometheus.Gauge
	activeCount prometheus.Gauge
}

// DefaultSize returns CPUMultiplier times the number of detected CPUs,
// and at least 1.
func DefaultSize() int {
	size := runtime.NumCPU() * CPUMultiplier
	if size < 1 {
		size = 1
	}
	return size
}

// New starts a Pool named name with the given capacity. A non-positive
// capacity falls back to DefaultSize.
func New(name string, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultSize()
	}
	p := &Pool{
		name:     name,
		capacity: capacity,
		jobs:     make(chan func(), capacity*4),
		done:     make(chan struct{}),
		queueDepth: registerGauge(prometheus.GaugeOpts{
			Namespace:   "kipa",
			Subsystem:   "workerpool",
			Name:        "queue_depth",
			Help:        "Number of jobs queued and not yet started in the worker pool.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
		activeCount: registerGauge(prometheus.GaugeOpts{
			Namespace:   "kipa",
			Subsystem:   "workerpool",
			Name:        "active_workers",
			Help:        "Number of workers currently executing a job.",
			ConstLabels: prometheus.Labels{"pool": name},
		}),
	}
	for i := 0; i < capacity; i++ {
		go p.worker()
	}
	return p
}

// registerGauge registers a gauge against the default registerer,
// reusing the already-registered collector when a pool of the same
// name was constructed before (tests build many short-lived pools
// sharing a name, which promauto's panic-on-duplicate behaviour does
// not tolerate).
func registerGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	gauge := prometheus.NewGauge(opts)
	if err := prometheus.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Gauge)
		}
		panic(err)
	}
	return gauge
}

func (p *Pool) worker() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.activeCount.Inc()
			job()
			p.activeCount.Dec()
		case <-p.done:
			// Run whatever was queued before Close, then exit.
			for {
				select {
				case job := <-p.jobs:
					p.activeCount.Inc()
					job()
					p.activeCount.Dec()
				default:
					return
				}
			}
		}
	}
}

// Capacity returns the number of worker goroutines.
func (p *Pool) Capacity() int { return p.capacity }

// Submit queues job to run on the next free worker. Non-blocking with
// respect to the caller beyond the queue's buffer.
func (p *Pool) Submit(job func()) {
	p.queueDepth.Inc()
	p.jobs <- func() {
		p.queueDepth.Dec()
		job()
	}
}

// Close tells the workers to exit once the queue is empty. Jobs
// already queued before Close continue to run. Submit does not check
// for a closed pool, so a job submitted after Close may never run.
func (p *Pool) Close() {
	close(p.done)
}
