// Package transport implements KIPA's two request/response channels
// described in spec.md §6: a GlobalTransport between daemons over TCP
// with a Noise handshake, and a LocalTransport over a Unix socket for
// the control CLI. Both frame their payloads identically.
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pangea-net/kipa/pkg/api"
)

// maxFrameLength bounds a single frame against a malformed or
// adversarial length prefix, mirroring the teacher's chunked-transfer
// reads in libp2p_node.go which bound file-header and share lengths
// the same way.
const maxFrameLength = 64 << 20

// WriteFrame writes a uint32 big-endian length prefix followed by
// payload to conn.
func WriteFrame(conn net.Conn, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return api.Wrap(api.KindExternal, "failed to write frame header", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return api.Wrap(api.KindExternal, "failed to write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from conn.
func ReadFrame(conn net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to read frame header", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLength {
		return nil, api.ParseError("frame length %d exceeds maximum %d", length, maxFrameLength)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to read frame body", err)
	}
	return payload, nil
}

// ReadFrameWithDeadline is ReadFrame with a bounded wait, used for the
// request/response round trip where a non-responding peer must not
// block a worker-pool slot forever (spec.md §5's "bounded wait").
func ReadFrameWithDeadline(conn net.Conn, deadline time.Duration) ([]byte, error) {
	if deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, api.Wrap(api.KindInternal, "failed to set read deadline", err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	return ReadFrame(conn)
}
