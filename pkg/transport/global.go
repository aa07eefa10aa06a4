package transport

import (
	"context"
	"crypto/rand"
	"net"

	logging "github.com/ipfs/go-log/v2"

	"github.com/flynn/noise"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/codec"
)

var logger = logging.Logger("kipa/transport")

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

// Session is an established, encrypted connection to a remote node,
// identified by the Node exchanged during the handshake.
type Session struct {
	conn       net.Conn
	peer       api.Node
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
}

// Peer returns the remote Node this Session authenticated as.
func (s *Session) Peer() api.Node { return s.peer }

// Send encrypts plaintext and writes it as a single frame.
func (s *Session) Send(plaintext []byte) error {
	ciphertext, err := s.sendCipher.Encrypt(nil, nil, plaintext)
	if err != nil {
		return api.Wrap(api.KindExternal, "failed to encrypt outgoing frame", err)
	}
	return WriteFrame(s.conn, ciphertext)
}

// Receive reads one frame and decrypts it.
func (s *Session) Receive() ([]byte, error) {
	ciphertext, err := ReadFrame(s.conn)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.recvCipher.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to decrypt incoming frame", err)
	}
	return plaintext, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// GlobalTransport is the inter-node transport described in spec.md
// §6: TCP with a Noise XX handshake carrying each side's Node
// identity, generalised from the teacher's network.go NoiseConfig/
// performHandshake (which exchanged a bare uint32 peer id).
type GlobalTransport struct {
	localNode api.Node
	staticKey noise.DHKey
	listener  net.Listener
}

// NewGlobalTransport generates a fresh Noise static keypair for the
// local node and constructs the transport.
func NewGlobalTransport(localNode api.Node) (*GlobalTransport, error) {
	staticKey, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to generate noise keypair", err)
	}
	return &GlobalTransport{localNode: localNode, staticKey: staticKey}, nil
}

// Listen binds addr; Accept then takes connections from it.
func (t *GlobalTransport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return api.Wrap(api.KindConfiguration, "failed to listen on "+addr, err)
	}
	t.listener = ln
	logger.Infow("global transport listening", "addr", addr)
	return nil
}

// Addr returns the bound listener address, valid after Listen.
func (t *GlobalTransport) Addr() net.Addr { return t.listener.Addr() }

// LocalNode returns the Node identity this transport presents during
// handshakes.
func (t *GlobalTransport) LocalNode() api.Node { return t.localNode }

// Accept blocks for the next incoming connection and completes its
// handshake as the responder.
func (t *GlobalTransport) Accept() (*Session, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to accept connection", err)
	}
	session, err := t.handshake(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// Dial connects to addr and completes the handshake as the
// initiator.
func (t *GlobalTransport) Dial(ctx context.Context, addr string) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to dial "+addr, err)
	}
	session, err := t.handshake(conn, true)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// Close stops accepting new connections.
func (t *GlobalTransport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// handshake runs the three-message Noise XX pattern, carrying each
// side's codec-encoded Node as the handshake payload so both ends
// learn who they're talking to without a separate round trip.
func (t *GlobalTransport) handshake(conn net.Conn, isInitiator bool) (*Session, error) {
	state, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     isInitiator,
		StaticKeypair: t.staticKey,
	})
	if err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to create handshake state", err)
	}

	localPayload := codec.EncodeNodeBytes(t.localNode)

	var cs1, cs2 *noise.CipherState
	var peer api.Node

	if isInitiator {
		// -> e
		msg, _, _, err := state.WriteMessage(nil, nil)
		if err != nil {
			return nil, api.Wrap(api.KindInternal, "handshake message 1 failed", err)
		}
		if err := WriteFrame(conn, msg); err != nil {
			return nil, err
		}

		// <- e, ee, s, es
		reply, err := ReadFrame(conn)
		if err != nil {
			return nil, err
		}
		remotePayload, _, _, err := state.ReadMessage(nil, reply)
		if err != nil {
			return nil, api.Wrap(api.KindExternal, "handshake message 2 read failed", err)
		}
		peer, err = codec.DecodeNodeBytes(remotePayload)
		if err != nil {
			return nil, err
		}

		// -> s, se
		msg, cs1, cs2, err = state.WriteMessage(nil, localPayload)
		if err != nil {
			return nil, api.Wrap(api.KindInternal, "handshake message 3 failed", err)
		}
		if err := WriteFrame(conn, msg); err != nil {
			return nil, err
		}
		return &Session{conn: conn, peer: peer, sendCipher: cs1, recvCipher: cs2}, nil
	}

	// Responder.
	msg1, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := state.ReadMessage(nil, msg1); err != nil {
		return nil, api.Wrap(api.KindExternal, "handshake message 1 read failed", err)
	}

	msg2, _, _, err := state.WriteMessage(nil, localPayload)
	if err != nil {
		return nil, api.Wrap(api.KindInternal, "handshake message 2 failed", err)
	}
	if err := WriteFrame(conn, msg2); err != nil {
		return nil, err
	}

	msg3, err := ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	remotePayload, cs1, cs2, err := state.ReadMessage(nil, msg3)
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "handshake message 3 read failed", err)
	}
	peer, err = codec.DecodeNodeBytes(remotePayload)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn, peer: peer, sendCipher: cs2, recvCipher: cs1}, nil
}
