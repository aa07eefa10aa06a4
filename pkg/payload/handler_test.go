package payload

import (
	"context"
	"testing"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/neighbours"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

type fakeClient struct {
	sendFunc func(ctx context.Context, node api.Node, request api.RequestPayload) (api.ResponsePayload, error)
}

func (f *fakeClient) Send(ctx context.Context, node api.Node, request api.RequestPayload) (api.ResponsePayload, error) {
	return f.sendFunc(ctx, node, request)
}

func testNode(t *testing.T, id string, port uint16) api.Node {
	t.Helper()
	addr, err := api.NewAddress([]byte{127, 0, 0, 1}, port)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	key, err := api.NewKey(id, []byte(id))
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	return api.NewNode(addr, key)
}

func newTestHandler(t *testing.T, local api.Node) (*GraphHandler, *neighbours.Store) {
	t.Helper()
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := neighbours.NewStore(manager, local, neighbours.DefaultCapacity, neighbours.DefaultDistanceWeight, neighbours.DefaultAngleWeight)
	pool := workerpool.New("test-payload-handler", 4)
	t.Cleanup(pool.Close)
	return NewGraphHandler(local, store, manager, pool), store
}

func TestGraphHandlerVisibilityRejectsMismatchedChannel(t *testing.T) {
	local := testNode(t, "localnod", 1000)
	handler, _ := newTestHandler(t, local)

	req := api.RequestPayload{Kind: api.RequestSearch, SearchKey: local.Key}
	_, err := handler.Receive(context.Background(), api.VisibilityGlobal, req, nil, nil)
	if err == nil {
		t.Fatalf("Receive succeeded for a Local-only request on the Global channel, want error")
	}
}

func TestGraphHandlerQueryReturnsClosest(t *testing.T) {
	local := testNode(t, "localnod", 1000)
	handler, store := newTestHandler(t, local)

	for i, id := range []string{"aaaaaaaa", "bbbbbbbb", "cccccccc", "dddddddd"} {
		store.ConsiderCandidate(testNode(t, id, uint16(2000+i)), false)
	}

	req := api.RequestPayload{Kind: api.RequestQuery, QueryKey: local.Key}
	resp, err := handler.Receive(context.Background(), api.VisibilityGlobal, req, nil, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if resp.Kind != api.RequestQuery {
		t.Fatalf("response kind = %v, want RequestQuery", resp.Kind)
	}
	if len(resp.QueryResult) == 0 {
		t.Fatalf("expected at least one queried neighbour")
	}
	if len(resp.QueryResult) > DefaultQuerySize {
		t.Fatalf("QueryResult has %d entries, want <= %d", len(resp.QueryResult), DefaultQuerySize)
	}
}

func TestGraphHandlerSearchFindsLocalNodeDirectly(t *testing.T) {
	local := testNode(t, "localnod", 1000)
	handler, _ := newTestHandler(t, local)

	client := &fakeClient{sendFunc: func(ctx context.Context, node api.Node, request api.RequestPayload) (api.ResponsePayload, error) {
		t.Fatalf("unexpected network call for a key the local node already holds")
		return api.ResponsePayload{}, nil
	}}

	req := api.RequestPayload{Kind: api.RequestSearch, SearchKey: local.Key}
	resp, err := handler.Receive(context.Background(), api.VisibilityLocal, req, nil, client)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !resp.SearchFound {
		t.Fatalf("SearchFound = false, want true")
	}
	if !resp.SearchResult.Key.Equal(local.Key) {
		t.Fatalf("SearchResult = %v, want local node", resp.SearchResult)
	}
}

func TestGraphHandlerListNeighbours(t *testing.T) {
	local := testNode(t, "localnod", 1000)
	handler, store := newTestHandler(t, local)
	store.ConsiderCandidate(testNode(t, "aaaaaaaa", 2000), false)

	req := api.RequestPayload{Kind: api.RequestListNeighbours}
	resp, err := handler.Receive(context.Background(), api.VisibilityLocal, req, nil, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(resp.ListNeighboursResult) != 1 {
		t.Fatalf("ListNeighboursResult has %d entries, want 1", len(resp.ListNeighboursResult))
	}
}

func TestBlackHoleHandlerAnswersEverything(t *testing.T) {
	h := NewBlackHoleHandler()
	key, _ := api.NewKey("aaaaaaaa", []byte("x"))

	resp, err := h.Receive(context.Background(), api.VisibilityGlobal, api.RequestPayload{Kind: api.RequestQuery, QueryKey: key}, nil, nil)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if resp.QueryResult != nil {
		t.Fatalf("QueryResult = %v, want nil", resp.QueryResult)
	}
}
