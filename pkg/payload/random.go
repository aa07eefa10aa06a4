package payload

import (
	"context"
	"math/rand"

	"github.com/pangea-net/kipa/pkg/api"
)

// RandomResponseHandler answers every request with plausible-looking
// but meaningless data, for exercising callers without a real network
// (spec.md §4.6, grounded in the original project's
// random_response.rs).
type RandomResponseHandler struct{}

// NewRandomResponseHandler constructs a RandomResponseHandler.
func NewRandomResponseHandler() *RandomResponseHandler { return &RandomResponseHandler{} }

const hexDigits = "0123456789abcdef"

func randomNode() api.Node {
	ip := make([]byte, 4)
	rand.Read(ip)
	port := uint16(rand.Intn(1 << 16))
	addr, _ := api.NewAddress(ip, port)

	id := make([]byte, api.KeyIDLength)
	for i := range id {
		id[i] = hexDigits[rand.Intn(len(hexDigits))]
	}
	data := make([]byte, 256)
	rand.Read(data)
	key, _ := api.NewKey(string(id), data)

	return api.NewNode(addr, key)
}

func (h *RandomResponseHandler) Receive(ctx context.Context, visibility api.Visibility, request api.RequestPayload, sender *api.Node, client Client) (api.ResponsePayload, error) {
	switch request.Kind {
	case api.RequestQuery:
		n := rand.Intn(10)
		nodes := make([]api.Node, n)
		for i := range nodes {
			nodes[i] = randomNode()
		}
		return api.ResponsePayload{Kind: api.RequestQuery, QueryResult: nodes}, nil
	case api.RequestSearch:
		if rand.Intn(2) == 0 {
			return api.ResponsePayload{Kind: api.RequestSearch, SearchFound: false}, nil
		}
		return api.ResponsePayload{Kind: api.RequestSearch, SearchFound: true, SearchResult: randomNode()}, nil
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
