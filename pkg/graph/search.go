// Package graph implements KIPA's parallel greedy best-first search
// over the network of nodes, described in spec.md §4.4.
package graph

import (
	"container/heap"
	"context"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

var logger = logging.Logger("kipa/graph")

// Action tells Search what to do after a found/explored callback runs.
type Action int

const (
	// Continue keeps the search running.
	Continue Action = iota
	// Return stops the search and yields Value as its result.
	Return
	// Exit stops the search with no result, as if it were exhausted.
	Exit
)

// CallbackResult is returned by a NodeCallback to steer the search.
type CallbackResult[T any] struct {
	Action Action
	Value  T
}

// ContinueResult lets the search keep running.
func ContinueResult[T any]() CallbackResult[T] {
	var zero T
	return CallbackResult[T]{Action: Continue, Value: zero}
}

// ReturnResult stops the search, yielding value.
func ReturnResult[T any](value T) CallbackResult[T] {
	return CallbackResult[T]{Action: Return, Value: value}
}

// ExitResultOf stops the search with no result.
func ExitResultOf[T any]() CallbackResult[T] {
	var zero T
	return CallbackResult[T]{Action: Exit, Value: zero}
}

// GetNeighboursFunc fetches current's neighbours from the network,
// biased toward target.
type GetNeighboursFunc func(ctx context.Context, current api.Node, target api.Key) ([]api.Node, error)

// NodeCallback is invoked once per node, either on first encounter
// (found) or once its neighbours have been fetched (explored).
type NodeCallback[T any] func(node api.Node) (CallbackResult[T], error)

type searchItem struct {
	node api.Node
	cost float64
}

type nodeHeap []searchItem

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(searchItem)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func applyCallback[T any](cb NodeCallback[T], n api.Node) (result *T, done bool, err error) {
	res, err := cb(n)
	if err != nil {
		return nil, false, err
	}
	switch res.Action {
	case Return:
		v := res.Value
		return &v, true, nil
	case Exit:
		return nil, true, nil
	default:
		return nil, false, nil
	}
}

// Search runs a parallel greedy best-first search for key, starting
// from startNodes. Neighbour fetches for the current frontier are
// dispatched onto pool up to its capacity, so up to pool.Capacity()
// nodes are explored concurrently; the result is reduced back onto a
// single coordinator goroutine, so found and explored are always
// called sequentially and need no locking of their own. found runs on
// first encounter with a node (including start nodes); explored runs
// once a node's neighbours have all been considered.
func Search[T any](
	ctx context.Context,
	manager *keyspace.Manager,
	pool *workerpool.Pool,
	key api.Key,
	startNodes []api.Node,
	getNeighbours GetNeighboursFunc,
	found NodeCallback[T],
	explored NodeCallback[T],
) (*T, error) {
	logger.Debugw("starting search", "key", key.ID(), "start_nodes", len(startNodes))

	target := manager.Project(key.Data())
	cost := func(n api.Node) float64 {
		return keyspace.Distance(manager.Project(n.Key.Data()), target)
	}

	h := &nodeHeap{}
	heap.Init(h)
	visited := make(map[string]struct{})

	for _, n := range startNodes {
		if _, seen := visited[n.Key.ID()]; seen {
			continue
		}
		visited[n.Key.ID()] = struct{}{}
		if result, done, err := applyCallback(found, n); err != nil {
			return nil, err
		} else if done {
			return result, nil
		}
		heap.Push(h, searchItem{node: n, cost: cost(n)})
	}

	type fetchResult struct {
		node       api.Node
		neighbours []api.Node
		err        error
	}
	results := make(chan fetchResult)
	inFlight := 0

	dispatch := func(item searchItem) {
		inFlight++
		pool.Submit(func() {
			neighbours, err := getNeighbours(ctx, item.node, key)
			results <- fetchResult{node: item.node, neighbours: neighbours, err: err}
		})
	}

	for h.Len() > 0 && inFlight < pool.Capacity() {
		dispatch(heap.Pop(h).(searchItem))
	}

	for inFlight > 0 {
		res := <-results
		inFlight--
		if res.err != nil {
			// A neighbour-fetch failure is routine in a P2P overlay
			// (timeout, dead peer, refused connection): swallow it,
			// treat the node as having no neighbours, and keep going.
			logger.Debugw("neighbour fetch failed, treating as explored with no neighbours",
				"node", res.node.Key.String(), "error", res.err)
			res.neighbours = nil
		}

		for _, n := range res.neighbours {
			if _, seen := visited[n.Key.ID()]; seen {
				continue
			}
			visited[n.Key.ID()] = struct{}{}
			if result, done, err := applyCallback(found, n); err != nil {
				return nil, err
			} else if done {
				return result, nil
			}
			heap.Push(h, searchItem{node: n, cost: cost(n)})
		}

		if result, done, err := applyCallback(explored, res.node); err != nil {
			return nil, err
		} else if done {
			return result, nil
		}

		for h.Len() > 0 && inFlight < pool.Capacity() {
			dispatch(heap.Pop(h).(searchItem))
		}
	}

	logger.Debugw("search exhausted without finding key", "key", key.ID())
	return nil, nil
}
