package payload

import (
	"context"

	"github.com/pangea-net/kipa/pkg/api"
)

// BlackHoleHandler answers every request with an empty result,
// without touching the network, for isolated component testing (spec.md §4.6,
// grounded in the original project's black_hole.rs).
type BlackHoleHandler struct{}

// NewBlackHoleHandler constructs a BlackHoleHandler.
func NewBlackHoleHandler() *BlackHoleHandler { return &BlackHoleHandler{} }

func (h *BlackHoleHandler) Receive(ctx context.Context, visibility api.Visibility, request api.RequestPayload, sender *api.Node, client Client) (api.ResponsePayload, error) {
	switch request.Kind {
	case api.RequestQuery:
		return api.ResponsePayload{Kind: api.RequestQuery, QueryResult: nil}, nil
	case api.RequestSearch:
		return api.ResponsePayload{Kind: api.RequestSearch, SearchFound: false}, nil
	case api.RequestConnect:
		return api.ResponsePayload{Kind: api.RequestConnect}, nil
	case api.RequestListNeighbours:
		return api.ResponsePayload{Kind: api.RequestListNeighbours, ListNeighboursResult: nil}, nil
	case api.RequestVerify:
		return api.ResponsePayload{Kind: api.RequestVerify}, nil
	default:
		return api.ResponsePayload{}, api.NewError(api.KindParse, "unknown request kind")
	}
}
