package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

func lineGraphNodes(t *testing.T, n int) []api.Node {
	t.Helper()
	nodes := make([]api.Node, n)
	for i := 0; i < n; i++ {
		addr, err := api.NewAddress([]byte{0, 0, 0, byte(i)}, uint16(i))
		if err != nil {
			t.Fatalf("NewAddress failed: %v", err)
		}
		key, err := api.NewKey(keyIDFor(i), []byte{byte(i)})
		if err != nil {
			t.Fatalf("NewKey failed: %v", err)
		}
		nodes[i] = api.NewNode(addr, key)
	}
	return nodes
}

func keyIDFor(i int) string {
	s := "00000000" + itoa(i)
	return s[len(s)-8:]
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

// lineNeighboursFunc returns a GetNeighboursFunc over a line graph
// where node i is adjacent to i-1 and i+1, mirroring the original
// project's graph search test fixture.
func lineNeighboursFunc(nodes []api.Node) GetNeighboursFunc {
	return func(ctx context.Context, current api.Node, target api.Key) ([]api.Node, error) {
		index := int(current.Address.Port())
		var neighbours []api.Node
		if index > 0 {
			neighbours = append(neighbours, nodes[index-1])
		}
		if index < len(nodes)-1 {
			neighbours = append(neighbours, nodes[index+1])
		}
		return neighbours, nil
	}
}

func TestSearchFindsStartNodeImmediately(t *testing.T) {
	nodes := lineGraphNodes(t, 10)
	manager := keyspace.NewManager(1)
	pool := workerpool.New("test-search-start", 4)
	defer pool.Close()

	found := func(n api.Node) (CallbackResult[string], error) {
		if n.Key.Equal(nodes[3].Key) {
			return ReturnResult(n.Key.ID()), nil
		}
		return ContinueResult[string](), nil
	}
	explored := func(n api.Node) (CallbackResult[string], error) {
		return ContinueResult[string](), nil
	}

	result, err := Search(context.Background(), manager, pool, nodes[3].Key, []api.Node{nodes[3]}, lineNeighboursFunc(nodes), found, explored)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result == nil || *result != nodes[3].Key.ID() {
		t.Fatalf("Search result = %v, want %q", result, nodes[3].Key.ID())
	}
}

func TestSearchExploresEntireLineGraph(t *testing.T) {
	const numNodes = 100
	nodes := lineGraphNodes(t, numNodes)
	manager := keyspace.NewManager(1)
	pool := workerpool.New("test-search-explore-all", 8)
	defer pool.Close()

	var mu sync.Mutex
	explored := make(map[string]bool)

	foundCb := func(n api.Node) (CallbackResult[struct{}], error) {
		return ContinueResult[struct{}](), nil
	}
	exploredCb := func(n api.Node) (CallbackResult[struct{}], error) {
		mu.Lock()
		explored[n.Key.ID()] = true
		mu.Unlock()
		return ContinueResult[struct{}](), nil
	}

	start := []api.Node{nodes[50], nodes[51]}
	result, err := Search(context.Background(), manager, pool, nodes[0].Key, start, lineNeighboursFunc(nodes), foundCb, exploredCb)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result != nil {
		t.Fatalf("Search returned a result, want none (found callback never returns)")
	}

	if len(explored) != numNodes {
		t.Fatalf("explored %d nodes, want %d", len(explored), numNodes)
	}
	for _, n := range nodes {
		if !explored[n.Key.ID()] {
			t.Fatalf("node %s was never explored", n.Key.ID())
		}
	}
}

func TestSearchSwallowsNeighbourFetchFailureAndContinues(t *testing.T) {
	const numNodes = 10
	nodes := lineGraphNodes(t, numNodes)
	manager := keyspace.NewManager(1)
	pool := workerpool.New("test-search-fetch-failure", 4)
	defer pool.Close()

	flaky := func(ctx context.Context, current api.Node, target api.Key) ([]api.Node, error) {
		if current.Key.Equal(nodes[4].Key) {
			return nil, api.NewError(api.KindExternal, "simulated timeout talking to node 4")
		}
		return lineNeighboursFunc(nodes)(ctx, current, target)
	}

	var mu sync.Mutex
	explored := make(map[string]bool)

	foundCb := func(n api.Node) (CallbackResult[struct{}], error) {
		return ContinueResult[struct{}](), nil
	}
	exploredCb := func(n api.Node) (CallbackResult[struct{}], error) {
		mu.Lock()
		explored[n.Key.ID()] = true
		mu.Unlock()
		return ContinueResult[struct{}](), nil
	}

	result, err := Search(context.Background(), manager, pool, nodes[0].Key, []api.Node{nodes[5]}, flaky, foundCb, exploredCb)
	if err != nil {
		t.Fatalf("Search failed, want the fetch error to be swallowed: %v", err)
	}
	if result != nil {
		t.Fatalf("Search returned a result, want none (found callback never returns)")
	}
	if !explored[nodes[4].Key.ID()] {
		t.Fatalf("node 4 was never marked explored despite its fetch failing")
	}
	if !explored[nodes[5].Key.ID()] || !explored[nodes[6].Key.ID()] {
		t.Fatalf("search stopped instead of continuing past the failing node: explored = %v", explored)
	}
	if explored[nodes[3].Key.ID()] {
		t.Fatalf("node 3 was explored even though node 4's fetch failure should have hidden it")
	}
}

func TestSearchWithBreadthStopsEarly(t *testing.T) {
	const numNodes = 100
	const breadth = 3
	nodes := lineGraphNodes(t, numNodes)
	manager := keyspace.NewManager(1)
	pool := workerpool.New("test-search-breadth", 4)
	defer pool.Close()

	var mu sync.Mutex
	explored := make(map[string]bool)

	foundCb := func(n api.Node) (CallbackResult[struct{}], error) {
		return ContinueResult[struct{}](), nil
	}
	exploredCb := func(n api.Node) (CallbackResult[struct{}], error) {
		mu.Lock()
		explored[n.Key.ID()] = true
		mu.Unlock()
		return ContinueResult[struct{}](), nil
	}

	result, err := SearchWithBreadth(context.Background(), manager, pool, nodes[0].Key, breadth, []api.Node{nodes[50]}, lineNeighboursFunc(nodes), foundCb, exploredCb)
	if err != nil {
		t.Fatalf("SearchWithBreadth failed: %v", err)
	}
	if result != nil {
		t.Fatalf("SearchWithBreadth returned a result, want none")
	}

	if len(explored) >= numNodes {
		t.Fatalf("breadth guard did not stop the search early: explored all %d nodes", numNodes)
	}
}
