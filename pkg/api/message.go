package api

// MessageBody wraps a payload with a random correlation id and the
// protocol Version it was built against, per spec.md §3. The id is
// generated fresh per outgoing body and echoed by the responder;
// mismatched ids are a response error (spec.md §7).
type MessageBody[T any] struct {
	Payload T
	ID      uint32
	Version Version
}

// NewMessageBody stamps payload with the given id and CurrentVersion.
func NewMessageBody[T any](payload T, id uint32) MessageBody[T] {
	return MessageBody[T]{Payload: payload, ID: id, Version: CurrentVersion}
}

// RequestPayloadKind tags the RequestPayload union, per spec.md §3's
// variant table.
type RequestPayloadKind int

const (
	RequestSearch RequestPayloadKind = iota
	RequestConnect
	RequestListNeighbours
	RequestQuery
	RequestVerify
)

func (k RequestPayloadKind) String() string {
	switch k {
	case RequestSearch:
		return "search"
	case RequestConnect:
		return "connect"
	case RequestListNeighbours:
		return "list_neighbours"
	case RequestQuery:
		return "query"
	case RequestVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Visibility distinguishes requests permitted only on the local
// control channel from those permitted only on the inter-node
// transport, per spec.md §3.
type Visibility int

const (
	VisibilityLocal Visibility = iota
	VisibilityGlobal
)

func (k RequestPayloadKind) Visibility() Visibility {
	switch k {
	case RequestSearch, RequestConnect, RequestListNeighbours:
		return VisibilityLocal
	default:
		return VisibilityGlobal
	}
}

// RequestPayload is the tagged union of request variants.
type RequestPayload struct {
	Kind RequestPayloadKind

	// SearchKey is set for RequestSearch.
	SearchKey Key
	// ConnectSeed is set for RequestConnect.
	ConnectSeed Node
	// QueryKey is set for RequestQuery.
	QueryKey Key
}

// ResponsePayload is the tagged union of response variants,
// corresponding one-to-one with RequestPayloadKind, plus the ApiError
// variant described in spec.md §6/§7: a version mismatch, a visibility
// violation, a decrypt/signature failure, or a handler error all
// surface as a typed error response instead of a dropped connection.
type ResponsePayload struct {
	Kind RequestPayloadKind

	// SearchResult is set for a Search response; the node was found, or
	// the zero value + SearchFound=false if the search was exhausted.
	SearchResult Node
	SearchFound  bool

	// QueryResult is set for a Query response.
	QueryResult []Node

	// ListNeighboursResult is set for a ListNeighbours response.
	ListNeighboursResult []Node

	// Err is set in place of every field above when this response is
	// the ApiError variant.
	Err *Error
}

// IsError reports whether this response is the ApiError variant.
func (r ResponsePayload) IsError() bool { return r.Err != nil }

// ErrorResponse builds an ApiError ResponsePayload, per spec.md §7's
// propagation policy: callers always get a typed response back, never
// a silently dropped connection. kind is best-effort (the originating
// request's kind, when known).
func ErrorResponse(kind RequestPayloadKind, err *Error) ResponsePayload {
	return ResponsePayload{Kind: kind, Err: err}
}

// Request is the outer envelope sent to a remote node: the sender's
// own Node plus the encrypted body bytes.
type Request struct {
	Sender        Node
	EncryptedBody []byte
}

// Response is the outer envelope returned to the caller: just the
// encrypted body, since the recipient already knows who it asked.
type Response struct {
	EncryptedBody []byte
}
