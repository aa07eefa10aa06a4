package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/payload"
)

func TestLocalServerRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "kipa.sock")

	lt, err := NewLocalTransport(socketPath)
	if err != nil {
		t.Fatalf("NewLocalTransport failed: %v", err)
	}

	server := NewLocalServer(lt, payload.NewBlackHoleHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)
	defer func() {
		server.Stop()
		lt.Close()
	}()

	key, err := api.NewKey("aaaaaaaa", []byte("x"))
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var resp api.ResponsePayload
	for {
		resp, err = SendLocal(socketPath, api.RequestPayload{Kind: api.RequestQuery, QueryKey: key})
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("SendLocal failed: %v", err)
	}
	if resp.Kind != api.RequestQuery {
		t.Fatalf("response kind = %v, want RequestQuery", resp.Kind)
	}
}

type erroringHandler struct{}

func (erroringHandler) Receive(ctx context.Context, visibility api.Visibility, request api.RequestPayload, sender *api.Node, client payload.Client) (api.ResponsePayload, error) {
	return api.ResponsePayload{}, api.NewError(api.KindConfiguration, "query requests are not permitted on this channel")
}

func TestLocalServerSurfacesHandlerErrorAsApiErrorResponse(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "kipa-err.sock")

	lt, err := NewLocalTransport(socketPath)
	if err != nil {
		t.Fatalf("NewLocalTransport failed: %v", err)
	}

	server := NewLocalServer(lt, erroringHandler{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)
	defer func() {
		server.Stop()
		lt.Close()
	}()

	key, _ := api.NewKey("aaaaaaaa", []byte("x"))

	deadline := time.Now().Add(2 * time.Second)
	var sendErr error
	for {
		_, sendErr = SendLocal(socketPath, api.RequestPayload{Kind: api.RequestQuery, QueryKey: key})
		if sendErr != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sendErr == nil {
		t.Fatalf("SendLocal succeeded, want a propagated ApiError")
	}
	apiErr, ok := sendErr.(*api.Error)
	if !ok {
		t.Fatalf("error = %T, want *api.Error", sendErr)
	}
	if apiErr.Kind != api.KindConfiguration {
		t.Fatalf("Kind = %v, want KindConfiguration", apiErr.Kind)
	}
}
