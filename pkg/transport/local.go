package transport

import (
	"net"
	"os"

	"github.com/pangea-net/kipa/pkg/api"
)

// DefaultUnixSocketPathPrefix is the default local control socket path,
// generalised from the original project's DEFAULT_UNIX_SOCKET_PATH
// ("/tmp/kipa") to a per-node-identity path so several local daemons
// can coexist on one machine.
const DefaultUnixSocketPathPrefix = "/tmp/kipa"

// LocalTransport listens on a Unix domain socket for the CLI's
// request/response traffic, per spec.md §6. Unlike GlobalTransport it
// carries no Noise handshake: the control socket is filesystem-
// permission-scoped to the local user, the way the original's
// UnixSocketLocalReceiveServer leaves it unencrypted.
type LocalTransport struct {
	socketPath string
	listener   net.Listener
}

// NewLocalTransport binds a Unix socket at socketPath. Any stale
// socket file left over from a previous, uncleanly-terminated run is
// removed first.
func NewLocalTransport(socketPath string) (*LocalTransport, error) {
	if _, err := os.Stat(socketPath); err == nil {
		os.Remove(socketPath)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, api.Wrap(api.KindConfiguration, "failed to bind unix socket "+socketPath, err)
	}
	logger.Infow("local transport listening", "path", socketPath)
	return &LocalTransport{socketPath: socketPath, listener: ln}, nil
}

// Accept blocks for the next incoming local connection.
func (t *LocalTransport) Accept() (net.Conn, error) {
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to accept local connection", err)
	}
	return conn, nil
}

// Close stops accepting connections and removes the socket file.
func (t *LocalTransport) Close() error {
	err := t.listener.Close()
	os.Remove(t.socketPath)
	return err
}

// DialLocal connects to a running daemon's local control socket,
// used by the CLI.
func DialLocal(socketPath string) (net.Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "failed to connect to "+socketPath, err)
	}
	return conn, nil
}
