package transport

import (
	"bytes"
	"context"
	"net"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/codec"
	"github.com/pangea-net/kipa/pkg/payload"
)

// LocalServer accepts CLI connections on a LocalTransport and
// dispatches each request to a payload.Handler on the local
// visibility channel. Local traffic carries bare RequestPayload/
// ResponsePayload frames with no sender identity or encryption
// envelope: the original project's unix-socket server left this
// channel unencrypted too, trusting filesystem permissions on the
// socket file instead (spec.md has no admission-control Non-goal
// exemption for this channel, so it stays that way here).
type LocalServer struct {
	transport *LocalTransport
	handler   payload.Handler
	client    payload.Client
	stop      chan struct{}
}

// NewLocalServer constructs a LocalServer. client lets the handler
// fan a Connect/Search request back out over the global transport.
func NewLocalServer(transport *LocalTransport, handler payload.Handler, client payload.Client) *LocalServer {
	return &LocalServer{transport: transport, handler: handler, client: client, stop: make(chan struct{})}
}

// Serve accepts connections until an accept fails after Stop has been
// called; accept errors before Stop are logged and the loop goes on.
func (s *LocalServer) Serve(ctx context.Context) {
	for {
		conn, err := s.transport.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				logger.Errorw("failed to accept local connection", "error", err)
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Stop stops Serve's accept loop. Serve returns only once its pending
// Accept fails, so the LocalTransport must be closed separately.
func (s *LocalServer) Stop() { close(s.stop) }

func (s *LocalServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	wire, err := ReadFrame(conn)
	if err != nil {
		logger.Debugw("failed to read local request", "error", err)
		return
	}
	request, err := codec.DecodeRequestPayload(bytes.NewReader(wire))
	if err != nil {
		logger.Debugw("failed to decode local request", "error", err)
		s.sendError(conn, api.RequestSearch, api.NewError(api.KindParse, "malformed local request"))
		return
	}

	response, err := s.handler.Receive(ctx, api.VisibilityLocal, request, nil, s.client)
	if err != nil {
		logger.Debugw("local handler returned an error", "error", err)
		s.sendError(conn, request.Kind, toPublicError(err))
		return
	}

	s.sendResponse(conn, response)
}

// sendResponse frames and writes response back to the CLI.
func (s *LocalServer) sendResponse(conn net.Conn, response api.ResponsePayload) {
	var buf bytes.Buffer
	codec.EncodeResponsePayload(&buf, response)
	if err := WriteFrame(conn, buf.Bytes()); err != nil {
		logger.Debugw("failed to write local response", "error", err)
	}
}

// sendError sends an ApiError response instead of silently dropping
// the connection, matching the global channel's propagation policy.
func (s *LocalServer) sendError(conn net.Conn, kind api.RequestPayloadKind, apiErr *api.Error) {
	s.sendResponse(conn, api.ErrorResponse(kind, apiErr))
}

// SendLocal is the CLI-side helper that opens a connection to
// socketPath, sends request, and reads back the response.
func SendLocal(socketPath string, request api.RequestPayload) (api.ResponsePayload, error) {
	conn, err := DialLocal(socketPath)
	if err != nil {
		return api.ResponsePayload{}, err
	}
	defer conn.Close()

	var buf bytes.Buffer
	codec.EncodeRequestPayload(&buf, request)
	if err := WriteFrame(conn, buf.Bytes()); err != nil {
		return api.ResponsePayload{}, err
	}

	wire, err := ReadFrame(conn)
	if err != nil {
		return api.ResponsePayload{}, err
	}
	response, err := codec.DecodeResponsePayload(bytes.NewReader(wire))
	if err != nil {
		return api.ResponsePayload{}, err
	}
	if response.IsError() {
		return api.ResponsePayload{}, response.Err
	}
	return response, nil
}
