package transport

import (
	"context"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/codec"
	"github.com/pangea-net/kipa/pkg/envelope"
	"github.com/pangea-net/kipa/pkg/payload"
)

// GlobalServer accepts inter-node connections and dispatches each
// request to a payload.Handler on the global (non-local) visibility
// channel, mirroring the original project's
// TcpPublicServer::handle_socket (one request/response per accepted
// connection).
type GlobalServer struct {
	transport *GlobalTransport
	handler   payload.Handler
	envelope  *envelope.SecureEnvelope
	client    *GlobalClient
	stop      chan struct{}
}

// NewGlobalServer constructs a GlobalServer. client is used by the
// handler to fan requests back out during a search/connect.
func NewGlobalServer(transport *GlobalTransport, handler payload.Handler, env *envelope.SecureEnvelope, client *GlobalClient) *GlobalServer {
	return &GlobalServer{transport: transport, handler: handler, envelope: env, client: client, stop: make(chan struct{})}
}

// Serve accepts connections until an accept fails after Stop has been
// called; accept errors before Stop are logged and the loop goes on.
// It should be run in its own goroutine.
func (s *GlobalServer) Serve(ctx context.Context) {
	for {
		session, err := s.transport.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				logger.Errorw("failed to accept global connection", "error", err)
				continue
			}
		}
		go s.handleSession(ctx, session)
	}
}

// Stop stops Serve's accept loop. The underlying listener must be
// closed separately via the GlobalTransport that owns it.
func (s *GlobalServer) Stop() { close(s.stop) }

func (s *GlobalServer) handleSession(ctx context.Context, session *Session) {
	defer session.Close()

	wire, err := session.Receive()
	if err != nil {
		logger.Debugw("failed to receive request", "peer", session.Peer(), "error", err)
		return
	}
	req, err := codec.DecodeRequest(wire)
	if err != nil {
		logger.Debugw("failed to decode request envelope", "error", err)
		return
	}
	plaintext, err := s.envelope.DecryptBody(req.EncryptedBody, req.Sender.Key)
	if err != nil {
		logger.Debugw("failed to decrypt request body", "sender", req.Sender, "error", err)
		s.sendError(session, req.Sender, 0, api.RequestSearch, api.NewError(api.KindParse, "failed to decrypt or verify request body"))
		return
	}
	body, err := codec.DecodeRequestBody(plaintext)
	if err != nil {
		logger.Debugw("failed to decode request body", "error", err)
		s.sendError(session, req.Sender, 0, api.RequestSearch, api.NewError(api.KindParse, "malformed request body"))
		return
	}
	if err := api.CurrentVersion.CheckCompatible(body.Version); err != nil {
		logger.Debugw("incompatible request version", "remote_version", body.Version, "error", err)
		s.sendError(session, req.Sender, body.ID, body.Payload.Kind, api.NewError(api.KindParse, err.Error()))
		return
	}

	responsePayload, err := s.handler.Receive(ctx, api.VisibilityGlobal, body.Payload, &req.Sender, s.client)
	if err != nil {
		logger.Debugw("handler returned an error", "error", err)
		s.sendError(session, req.Sender, body.ID, body.Payload.Kind, toPublicError(err))
		return
	}

	if err := s.sendResponse(session, req.Sender, body.ID, responsePayload); err != nil {
		logger.Debugw("failed to send response", "error", err)
	}
}

// sendResponse encrypts and sends payload back to recipient as id's
// response.
func (s *GlobalServer) sendResponse(session *Session, recipient api.Node, id uint32, payload api.ResponsePayload) error {
	responseBody := api.NewMessageBody(payload, id)
	responsePlaintext := codec.EncodeResponseBody(responseBody)
	encryptedResponse, err := s.envelope.EncryptBody(responsePlaintext, recipient.Key)
	if err != nil {
		return err
	}
	return session.Send(codec.EncodeResponse(api.Response{EncryptedBody: encryptedResponse}))
}

// sendError sends an ApiError response rather than dropping the
// connection, per spec.md §7's propagation policy: a version
// mismatch, a decrypt/signature failure, or a handler error is always
// surfaced as a typed response to the caller.
func (s *GlobalServer) sendError(session *Session, recipient api.Node, id uint32, kind api.RequestPayloadKind, apiErr *api.Error) {
	if err := s.sendResponse(session, recipient, id, api.ErrorResponse(kind, apiErr)); err != nil {
		logger.Debugw("failed to send error response", "error", err)
	}
}

// toPublicError narrows an arbitrary error down to the public Kind +
// Message the wire format carries; an *api.Error passes through
// unchanged, anything else is reported as internal.
func toPublicError(err error) *api.Error {
	if apiErr, ok := err.(*api.Error); ok {
		return apiErr
	}
	return api.Wrap(api.KindInternal, "internal error", err)
}
