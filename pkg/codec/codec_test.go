package codec

import (
	"bytes"
	"testing"

	"github.com/pangea-net/kipa/pkg/api"
)

func mustKey(t *testing.T, id string, data string) api.Key {
	t.Helper()
	k, err := api.NewKey(id, []byte(data))
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	return k
}

func mustNode(t *testing.T, id string) api.Node {
	t.Helper()
	addr, err := api.NewAddress([]byte{10, 0, 0, 1}, 10842)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	return api.NewNode(addr, mustKey(t, id, "key-data-"+id))
}

func TestNodeRoundTrip(t *testing.T) {
	node := mustNode(t, "aaaaaaaa")

	var buf bytes.Buffer
	EncodeNode(&buf, node)

	got, err := DecodeNode(&buf)
	if err != nil {
		t.Fatalf("DecodeNode failed: %v", err)
	}
	if !got.Equal(node) {
		t.Fatalf("DecodeNode = %v, want %v", got, node)
	}
}

func TestRequestPayloadRoundTrip(t *testing.T) {
	cases := []api.RequestPayload{
		{Kind: api.RequestSearch, SearchKey: mustKey(t, "ssssssss", "search")},
		{Kind: api.RequestConnect, ConnectSeed: mustNode(t, "cccccccc")},
		{Kind: api.RequestQuery, QueryKey: mustKey(t, "qqqqqqqq", "query")},
		{Kind: api.RequestListNeighbours},
		{Kind: api.RequestVerify},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		EncodeRequestPayload(&buf, want)

		got, err := DecodeRequestPayload(&buf)
		if err != nil {
			t.Fatalf("DecodeRequestPayload(%v) failed: %v", want.Kind, err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("Kind = %v, want %v", got.Kind, want.Kind)
		}
	}
}

func TestResponsePayloadRoundTrip(t *testing.T) {
	foundNode := mustNode(t, "ffffffff")
	cases := []api.ResponsePayload{
		{Kind: api.RequestSearch, SearchFound: true, SearchResult: foundNode},
		{Kind: api.RequestSearch, SearchFound: false},
		{Kind: api.RequestQuery, QueryResult: []api.Node{mustNode(t, "11111111"), mustNode(t, "22222222")}},
		{Kind: api.RequestListNeighbours, ListNeighboursResult: []api.Node{mustNode(t, "33333333")}},
		{Kind: api.RequestConnect},
		{Kind: api.RequestVerify},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		EncodeResponsePayload(&buf, want)

		got, err := DecodeResponsePayload(&buf)
		if err != nil {
			t.Fatalf("DecodeResponsePayload(%v) failed: %v", want.Kind, err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("Kind = %v, want %v", got.Kind, want.Kind)
		}
		if want.Kind == api.RequestSearch && got.SearchFound != want.SearchFound {
			t.Fatalf("SearchFound = %v, want %v", got.SearchFound, want.SearchFound)
		}
	}
}

func TestResponsePayloadErrorRoundTrip(t *testing.T) {
	want := api.ErrorResponse(api.RequestQuery, api.NewError(api.KindParse, "major versions do not match"))

	var buf bytes.Buffer
	EncodeResponsePayload(&buf, want)

	got, err := DecodeResponsePayload(&buf)
	if err != nil {
		t.Fatalf("DecodeResponsePayload failed: %v", err)
	}
	if !got.IsError() {
		t.Fatalf("IsError() = false, want true")
	}
	if got.Kind != want.Kind {
		t.Fatalf("Kind = %v, want %v", got.Kind, want.Kind)
	}
	if got.Err.Kind != want.Err.Kind || got.Err.Message != want.Err.Message {
		t.Fatalf("Err = %+v, want %+v", got.Err, want.Err)
	}
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	req := api.Request{Sender: mustNode(t, "aaaaaaaa"), EncryptedBody: []byte("ciphertext")}
	data := EncodeRequest(req)

	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if !got.Sender.Equal(req.Sender) {
		t.Fatalf("Sender = %v, want %v", got.Sender, req.Sender)
	}
	if string(got.EncryptedBody) != string(req.EncryptedBody) {
		t.Fatalf("EncryptedBody = %q, want %q", got.EncryptedBody, req.EncryptedBody)
	}
}

func TestRequestBodyRoundTrip(t *testing.T) {
	body := api.NewMessageBody(api.RequestPayload{Kind: api.RequestListNeighbours}, 42)
	data := EncodeRequestBody(body)

	got, err := DecodeRequestBody(data)
	if err != nil {
		t.Fatalf("DecodeRequestBody failed: %v", err)
	}
	if got.ID != body.ID || got.Version != body.Version || got.Payload.Kind != body.Payload.Kind {
		t.Fatalf("DecodeRequestBody = %+v, want %+v", got, body)
	}
}
