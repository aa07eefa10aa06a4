package pgp

import (
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
)

var logger = logging.Logger("kipa/pgp")

// SecretLoader supplies the passphrase protecting the local node's
// private key material.
type SecretLoader interface {
	Load() (string, error)
}

// FileSecretLoader reads the passphrase from a file on disk, per the
// original project's passphrase-file convention (never a CLI flag, so
// the passphrase never appears in a process listing or shell history).
type FileSecretLoader struct {
	path string
}

// NewFileSecretLoader constructs a FileSecretLoader reading from path.
func NewFileSecretLoader(path string) *FileSecretLoader {
	return &FileSecretLoader{path: path}
}

// Load reads and trims the trailing newline from the secret file.
func (l *FileSecretLoader) Load() (string, error) {
	logger.Debugw("reading secret from file", "path", l.path)

	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", api.Wrap(api.KindConfiguration, "failed to read secret file "+l.path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
