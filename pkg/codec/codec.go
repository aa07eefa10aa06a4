// Package codec implements the binary wire format for KIPA's request
// and response envelopes, described in spec.md §5 and §6: a tagged
// union per variant, with every variable-length blob, string and list
// prefixed by its big-endian uint32 length (an address's IP bytes carry
// a one-byte length instead). Framing (the outer length prefix) is
// pkg/transport's job; this package only serializes and parses the
// bytes that go inside a frame.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pangea-net/kipa/pkg/api"
)

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, api.Wrap(api.KindParse, "failed to read uint32", err)
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint16(r io.Reader) (uint16, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, api.Wrap(api.KindParse, "failed to read uint16", err)
	}
	return binary.BigEndian.Uint16(tmp[:]), nil
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

const maxBlobLength = 64 << 20 // 64 MiB, generous upper bound against malformed length prefixes

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxBlobLength {
		return nil, api.ParseError("blob length %d exceeds maximum %d", n, maxBlobLength)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, api.Wrap(api.KindParse, "failed to read blob body", err)
	}
	return data, nil
}

// EncodeKey appends key's wire representation to buf: its fixed-width
// id followed by a length-prefixed data blob.
func EncodeKey(buf *bytes.Buffer, key api.Key) {
	buf.WriteString(key.ID())
	writeBytes(buf, key.Data())
}

// DecodeKey reads a Key from r.
func DecodeKey(r io.Reader) (api.Key, error) {
	idBytes := make([]byte, api.KeyIDLength)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return api.Key{}, api.Wrap(api.KindParse, "failed to read key id", err)
	}
	data, err := readBytes(r)
	if err != nil {
		return api.Key{}, err
	}
	return api.NewKey(string(idBytes), data)
}

// EncodeAddress appends address's wire representation to buf: a
// one-byte IP length (4 or 16), the IP bytes, then the port.
func EncodeAddress(buf *bytes.Buffer, addr api.Address) {
	ip := addr.IP()
	buf.WriteByte(byte(len(ip)))
	buf.Write(ip)
	writeUint16(buf, addr.Port())
}

// DecodeAddress reads an Address from r.
func DecodeAddress(r io.Reader) (api.Address, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return api.Address{}, api.Wrap(api.KindParse, "failed to read address length", err)
	}
	ip := make([]byte, lenByte[0])
	if _, err := io.ReadFull(r, ip); err != nil {
		return api.Address{}, api.Wrap(api.KindParse, "failed to read address ip", err)
	}
	port, err := readUint16(r)
	if err != nil {
		return api.Address{}, err
	}
	return api.NewAddress(ip, port)
}

// EncodeNode appends node's Address followed by its Key.
func EncodeNode(buf *bytes.Buffer, node api.Node) {
	EncodeAddress(buf, node.Address)
	EncodeKey(buf, node.Key)
}

// DecodeNode reads a Node from r.
func DecodeNode(r io.Reader) (api.Node, error) {
	addr, err := DecodeAddress(r)
	if err != nil {
		return api.Node{}, err
	}
	key, err := DecodeKey(r)
	if err != nil {
		return api.Node{}, err
	}
	return api.NewNode(addr, key), nil
}

// EncodeNodeBytes encodes a single Node to a standalone byte slice,
// for callers (such as pkg/transport's handshake payload) that have
// no surrounding buffer of their own.
func EncodeNodeBytes(node api.Node) []byte {
	var buf bytes.Buffer
	EncodeNode(&buf, node)
	return buf.Bytes()
}

// DecodeNodeBytes decodes a single Node from a standalone byte slice.
func DecodeNodeBytes(data []byte) (api.Node, error) {
	return DecodeNode(bytes.NewReader(data))
}

func encodeNodeList(buf *bytes.Buffer, nodes []api.Node) {
	writeUint32(buf, uint32(len(nodes)))
	for _, n := range nodes {
		EncodeNode(buf, n)
	}
}

func decodeNodeList(r io.Reader) ([]api.Node, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count > maxBlobLength {
		return nil, api.ParseError("node list length %d exceeds maximum", count)
	}
	nodes := make([]api.Node, count)
	for i := range nodes {
		n, err := DecodeNode(r)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

// EncodeVersion appends v's three uint32 components.
func EncodeVersion(buf *bytes.Buffer, v api.Version) {
	writeUint32(buf, v.Major)
	writeUint32(buf, v.Minor)
	writeUint32(buf, v.Patch)
}

// DecodeVersion reads a Version from r.
func DecodeVersion(r io.Reader) (api.Version, error) {
	major, err := readUint32(r)
	if err != nil {
		return api.Version{}, err
	}
	minor, err := readUint32(r)
	if err != nil {
		return api.Version{}, err
	}
	patch, err := readUint32(r)
	if err != nil {
		return api.Version{}, err
	}
	return api.Version{Major: major, Minor: minor, Patch: patch}, nil
}

// EncodeRequestPayload appends payload's tagged-union wire
// representation.
func EncodeRequestPayload(buf *bytes.Buffer, payload api.RequestPayload) {
	buf.WriteByte(byte(payload.Kind))
	switch payload.Kind {
	case api.RequestSearch:
		EncodeKey(buf, payload.SearchKey)
	case api.RequestConnect:
		EncodeNode(buf, payload.ConnectSeed)
	case api.RequestQuery:
		EncodeKey(buf, payload.QueryKey)
	case api.RequestListNeighbours, api.RequestVerify:
		// No fields.
	}
}

// DecodeRequestPayload reads a RequestPayload from r.
func DecodeRequestPayload(r io.Reader) (api.RequestPayload, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return api.RequestPayload{}, api.Wrap(api.KindParse, "failed to read request kind", err)
	}
	kind := api.RequestPayloadKind(tag[0])

	switch kind {
	case api.RequestSearch:
		key, err := DecodeKey(r)
		if err != nil {
			return api.RequestPayload{}, err
		}
		return api.RequestPayload{Kind: kind, SearchKey: key}, nil
	case api.RequestConnect:
		node, err := DecodeNode(r)
		if err != nil {
			return api.RequestPayload{}, err
		}
		return api.RequestPayload{Kind: kind, ConnectSeed: node}, nil
	case api.RequestQuery:
		key, err := DecodeKey(r)
		if err != nil {
			return api.RequestPayload{}, err
		}
		return api.RequestPayload{Kind: kind, QueryKey: key}, nil
	case api.RequestListNeighbours, api.RequestVerify:
		return api.RequestPayload{Kind: kind}, nil
	default:
		return api.RequestPayload{}, api.ParseError("unknown request kind tag %d", tag[0])
	}
}

// responseErrorTag marks the ApiError variant on the wire. It never
// collides with a RequestPayloadKind tag, all of which fit in the low
// handful of values.
const responseErrorTag = 0xFF

// EncodeResponsePayload appends payload's tagged-union wire
// representation, or the ApiError variant (tag, original kind, error
// kind, message) when payload.IsError().
func EncodeResponsePayload(buf *bytes.Buffer, payload api.ResponsePayload) {
	if payload.IsError() {
		buf.WriteByte(responseErrorTag)
		buf.WriteByte(byte(payload.Kind))
		buf.WriteByte(byte(payload.Err.Kind))
		writeBytes(buf, []byte(payload.Err.Message))
		return
	}
	buf.WriteByte(byte(payload.Kind))
	switch payload.Kind {
	case api.RequestSearch:
		if payload.SearchFound {
			buf.WriteByte(1)
			EncodeNode(buf, payload.SearchResult)
		} else {
			buf.WriteByte(0)
		}
	case api.RequestQuery:
		encodeNodeList(buf, payload.QueryResult)
	case api.RequestListNeighbours:
		encodeNodeList(buf, payload.ListNeighboursResult)
	case api.RequestConnect, api.RequestVerify:
		// No fields.
	}
}

// DecodeResponsePayload reads a ResponsePayload from r.
func DecodeResponsePayload(r io.Reader) (api.ResponsePayload, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return api.ResponsePayload{}, api.Wrap(api.KindParse, "failed to read response kind", err)
	}
	if tag[0] == responseErrorTag {
		var kindByte [1]byte
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return api.ResponsePayload{}, api.Wrap(api.KindParse, "failed to read error response kind", err)
		}
		var errKindByte [1]byte
		if _, err := io.ReadFull(r, errKindByte[:]); err != nil {
			return api.ResponsePayload{}, api.Wrap(api.KindParse, "failed to read error kind", err)
		}
		message, err := readBytes(r)
		if err != nil {
			return api.ResponsePayload{}, err
		}
		return api.ErrorResponse(api.RequestPayloadKind(kindByte[0]), api.NewError(api.Kind(errKindByte[0]), string(message))), nil
	}
	kind := api.RequestPayloadKind(tag[0])

	switch kind {
	case api.RequestSearch:
		var found [1]byte
		if _, err := io.ReadFull(r, found[:]); err != nil {
			return api.ResponsePayload{}, api.Wrap(api.KindParse, "failed to read search-found flag", err)
		}
		if found[0] == 0 {
			return api.ResponsePayload{Kind: kind, SearchFound: false}, nil
		}
		node, err := DecodeNode(r)
		if err != nil {
			return api.ResponsePayload{}, err
		}
		return api.ResponsePayload{Kind: kind, SearchFound: true, SearchResult: node}, nil
	case api.RequestQuery:
		nodes, err := decodeNodeList(r)
		if err != nil {
			return api.ResponsePayload{}, err
		}
		return api.ResponsePayload{Kind: kind, QueryResult: nodes}, nil
	case api.RequestListNeighbours:
		nodes, err := decodeNodeList(r)
		if err != nil {
			return api.ResponsePayload{}, err
		}
		return api.ResponsePayload{Kind: kind, ListNeighboursResult: nodes}, nil
	case api.RequestConnect, api.RequestVerify:
		return api.ResponsePayload{Kind: kind}, nil
	default:
		return api.ResponsePayload{}, api.ParseError("unknown response kind tag %d", tag[0])
	}
}

// EncodeRequestBody serializes a MessageBody[RequestPayload]: its id,
// Version, then the tagged RequestPayload.
func EncodeRequestBody(body api.MessageBody[api.RequestPayload]) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, body.ID)
	EncodeVersion(&buf, body.Version)
	EncodeRequestPayload(&buf, body.Payload)
	return buf.Bytes()
}

// DecodeRequestBody parses a MessageBody[RequestPayload] from data.
func DecodeRequestBody(data []byte) (api.MessageBody[api.RequestPayload], error) {
	r := bytes.NewReader(data)
	id, err := readUint32(r)
	if err != nil {
		return api.MessageBody[api.RequestPayload]{}, err
	}
	version, err := DecodeVersion(r)
	if err != nil {
		return api.MessageBody[api.RequestPayload]{}, err
	}
	payload, err := DecodeRequestPayload(r)
	if err != nil {
		return api.MessageBody[api.RequestPayload]{}, err
	}
	return api.MessageBody[api.RequestPayload]{ID: id, Version: version, Payload: payload}, nil
}

// EncodeResponseBody serializes a MessageBody[ResponsePayload].
func EncodeResponseBody(body api.MessageBody[api.ResponsePayload]) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, body.ID)
	EncodeVersion(&buf, body.Version)
	EncodeResponsePayload(&buf, body.Payload)
	return buf.Bytes()
}

// DecodeResponseBody parses a MessageBody[ResponsePayload] from data.
func DecodeResponseBody(data []byte) (api.MessageBody[api.ResponsePayload], error) {
	r := bytes.NewReader(data)
	id, err := readUint32(r)
	if err != nil {
		return api.MessageBody[api.ResponsePayload]{}, err
	}
	version, err := DecodeVersion(r)
	if err != nil {
		return api.MessageBody[api.ResponsePayload]{}, err
	}
	payload, err := DecodeResponsePayload(r)
	if err != nil {
		return api.MessageBody[api.ResponsePayload]{}, err
	}
	return api.MessageBody[api.ResponsePayload]{ID: id, Version: version, Payload: payload}, nil
}

// EncodeRequest serializes the outer Request envelope: the sender
// Node in the clear, followed by the length-prefixed encrypted body.
func EncodeRequest(req api.Request) []byte {
	var buf bytes.Buffer
	EncodeNode(&buf, req.Sender)
	writeBytes(&buf, req.EncryptedBody)
	return buf.Bytes()
}

// DecodeRequest parses an outer Request envelope from data.
func DecodeRequest(data []byte) (api.Request, error) {
	r := bytes.NewReader(data)
	sender, err := DecodeNode(r)
	if err != nil {
		return api.Request{}, err
	}
	encryptedBody, err := readBytes(r)
	if err != nil {
		return api.Request{}, err
	}
	return api.Request{Sender: sender, EncryptedBody: encryptedBody}, nil
}

// EncodeResponse serializes the outer Response envelope: just the
// length-prefixed encrypted body.
func EncodeResponse(resp api.Response) []byte {
	var buf bytes.Buffer
	writeBytes(&buf, resp.EncryptedBody)
	return buf.Bytes()
}

// DecodeResponse parses an outer Response envelope from data.
func DecodeResponse(data []byte) (api.Response, error) {
	r := bytes.NewReader(data)
	encryptedBody, err := readBytes(r)
	if err != nil {
		return api.Response{}, err
	}
	return api.Response{EncryptedBody: encryptedBody}, nil
}
