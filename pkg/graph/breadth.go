package graph

import (
	"context"
	"sort"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

// SearchWithBreadth runs Search but wraps found/explored with a
// breadth guard: the search keeps running until the breadth closest
// nodes seen so far have all been explored, then exits with no result
// even if the heap is not empty. Since Search calls found/explored
// sequentially on a single coordinator goroutine, the wrapped
// callbacks below need no locking of their own.
func SearchWithBreadth[T any](
	ctx context.Context,
	manager *keyspace.Manager,
	pool *workerpool.Pool,
	key api.Key,
	breadth int,
	startNodes []api.Node,
	getNeighbours GetNeighboursFunc,
	found NodeCallback[T],
	explored NodeCallback[T],
) (*T, error) {
	target := manager.Project(key.Data())

	type closestEntry struct {
		node     api.Node
		explored bool
	}
	closest := make([]closestEntry, 0, breadth)

	distanceTo := func(n api.Node) float64 {
		return keyspace.Distance(manager.Project(n.Key.Data()), target)
	}

	wrappedFound := func(n api.Node) (CallbackResult[T], error) {
		closest = append(closest, closestEntry{node: n})
		sort.SliceStable(closest, func(i, j int) bool {
			return distanceTo(closest[i].node) < distanceTo(closest[j].node)
		})
		if len(closest) > breadth {
			closest = closest[:breadth]
		}
		return found(n)
	}

	wrappedExplored := func(n api.Node) (CallbackResult[T], error) {
		for i := range closest {
			if closest[i].node.Key.ID() == n.Key.ID() {
				closest[i].explored = true
			}
		}

		allExplored := len(closest) == breadth
		for _, e := range closest {
			if !e.explored {
				allExplored = false
				break
			}
		}
		if allExplored {
			return ExitResultOf[T](), nil
		}
		return explored(n)
	}

	return Search(ctx, manager, pool, key, startNodes, getNeighbours, wrappedFound, wrappedExplored)
}
