// Package payload implements the PayloadHandler described in spec.md
// §4.6: dispatching incoming requests to the neighbour store and
// graph search, and enforcing the Local/Global visibility rule on
// each request kind.
package payload

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/graph"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/neighbours"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

var logger = logging.Logger("kipa/payload")

// Default sizes, matching the original project's graph payload
// handler defaults.
const (
	DefaultQuerySize      = 3
	DefaultConnectBreadth = 3
)

// Client is how a Handler reaches other nodes to carry out a search
// or connect; it is the local node's view of the transport layer.
type Client interface {
	Send(ctx context.Context, node api.Node, request api.RequestPayload) (api.ResponsePayload, error)
}

// Handler turns an incoming RequestPayload into a ResponsePayload.
// sender is nil for requests arriving on the local control channel.
type Handler interface {
	Receive(ctx context.Context, visibility api.Visibility, request api.RequestPayload, sender *api.Node, client Client) (api.ResponsePayload, error)
}

// GraphHandler is the production Handler: it answers Query/
// ListNeighbours directly from the local neighbour store, and drives
// Search/Connect through a graph search over the network.
type GraphHandler struct {
	localNode      api.Node
	store          *neighbours.Store
	manager        *keyspace.Manager
	pool           *workerpool.Pool
	querySize      int
	connectBreadth int
}

// NewGraphHandler constructs a GraphHandler for localNode.
func NewGraphHandler(localNode api.Node, store *neighbours.Store, manager *keyspace.Manager, pool *workerpool.Pool) *GraphHandler {
	return &GraphHandler{
		localNode:      localNode,
		store:          store,
		manager:        manager,
		pool:           pool,
		querySize:      DefaultQuerySize,
		connectBreadth: DefaultConnectBreadth,
	}
}

// Receive enforces spec.md §4.6's visibility rule (a request's kind
// must match the channel it arrived on), admits sender as a neighbour
// candidate, and dispatches to the matching handler.
func (h *GraphHandler) Receive(ctx context.Context, visibility api.Visibility, request api.RequestPayload, sender *api.Node, client Client) (api.ResponsePayload, error) {
	if request.Kind.Visibility() != visibility {
		return api.ResponsePayload{}, api.NewError(api.KindConfiguration, fmt.Sprintf("%s requests are not permitted on this channel", request.Kind))
	}

	if sender != nil {
		h.store.ConsiderCandidate(*sender, true)
	}

	logger.Debugw("received request", "kind", request.Kind.String())

	switch request.Kind {
	case api.RequestQuery:
		return h.handleQuery(request.QueryKey), nil
	case api.RequestSearch:
		return h.handleSearch(ctx, request.SearchKey, client)
	case api.RequestConnect:
		return h.handleConnect(ctx, request.ConnectSeed, client)
	case api.RequestListNeighbours:
		return api.ResponsePayload{Kind: api.RequestListNeighbours, ListNeighboursResult: h.store.GetAll()}, nil
	case api.RequestVerify:
		return api.ResponsePayload{Kind: api.RequestVerify}, nil
	default:
		return api.ResponsePayload{}, api.NewError(api.KindParse, "unknown request kind")
	}
}

func (h *GraphHandler) handleQuery(key api.Key) api.ResponsePayload {
	nodes := h.store.GetNClosest(key, h.querySize)
	return api.ResponsePayload{Kind: api.RequestQuery, QueryResult: nodes}
}

// getNeighboursFunc answers "what are current's neighbours" either
// directly from the local store (when current is the local node) or
// by sending a Query request over client, per the original project's
// create_get_neighbours_fn.
func (h *GraphHandler) getNeighboursFunc(client Client) graph.GetNeighboursFunc {
	return func(ctx context.Context, current api.Node, target api.Key) ([]api.Node, error) {
		if current.Key.Equal(h.localNode.Key) {
			return h.store.GetAll(), nil
		}

		response, err := client.Send(ctx, current, api.RequestPayload{Kind: api.RequestQuery, QueryKey: target})
		if err != nil {
			return nil, err
		}
		if response.Kind != api.RequestQuery {
			return nil, api.NewError(api.KindExternal, "incorrect response kind for query request")
		}
		return response.QueryResult, nil
	}
}

func (h *GraphHandler) handleSearch(ctx context.Context, key api.Key, client Client) (api.ResponsePayload, error) {
	found := func(n api.Node) (graph.CallbackResult[api.Node], error) {
		if !n.Key.Equal(key) {
			return graph.ContinueResult[api.Node](), nil
		}
		// A Query answer claiming to hold key might be stale or
		// malicious; verify it owns the key before trusting it,
		// per spec.md §4.6's verify-gated answer. The local node
		// needs no round-trip to verify itself.
		if !n.Key.Equal(h.localNode.Key) {
			if _, err := client.Send(ctx, n, api.RequestPayload{Kind: api.RequestVerify}); err != nil {
				logger.Debugw("verify failed for search candidate, continuing search", "key", n.Key.String(), "error", err)
				return graph.ContinueResult[api.Node](), nil
			}
		}
		return graph.ReturnResult(n), nil
	}
	explored := func(n api.Node) (graph.CallbackResult[api.Node], error) {
		return graph.ContinueResult[api.Node](), nil
	}

	result, err := graph.Search(ctx, h.manager, h.pool, key, []api.Node{h.localNode}, h.getNeighboursFunc(client), found, explored)
	if err != nil {
		return api.ResponsePayload{}, err
	}
	if result == nil {
		return api.ResponsePayload{Kind: api.RequestSearch, SearchFound: false}, nil
	}
	return api.ResponsePayload{Kind: api.RequestSearch, SearchFound: true, SearchResult: *result}, nil
}

func (h *GraphHandler) handleConnect(ctx context.Context, seed api.Node, client Client) (api.ResponsePayload, error) {
	found := func(n api.Node) (graph.CallbackResult[struct{}], error) {
		h.store.ConsiderCandidate(n, false)
		return graph.ContinueResult[struct{}](), nil
	}
	explored := func(n api.Node) (graph.CallbackResult[struct{}], error) {
		return graph.ContinueResult[struct{}](), nil
	}

	_, err := graph.SearchWithBreadth(ctx, h.manager, h.pool, h.localNode.Key, h.connectBreadth, []api.Node{seed}, h.getNeighboursFunc(client), found, explored)
	if err != nil {
		return api.ResponsePayload{}, err
	}
	return api.ResponsePayload{Kind: api.RequestConnect}, nil
}
