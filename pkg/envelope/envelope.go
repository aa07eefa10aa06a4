// Package envelope implements the SecureEnvelope described in spec.md
// §4.3: encrypting and signing a MessageBody for a specific recipient,
// and decrypting and verifying one addressed to the local node.
package envelope

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/pgp"
)

var logger = logging.Logger("kipa/envelope")

// SecureEnvelope wraps a pgp.SigningEncrypter with the local node's
// identity, exposing the body-level EncryptBody/DecryptBody operations
// the transport and payload layers build on.
type SecureEnvelope struct {
	crypto pgp.SigningEncrypter
	local  api.SecretKey
}

// New constructs a SecureEnvelope for the local node's secret key.
func New(crypto pgp.SigningEncrypter, local api.SecretKey) *SecureEnvelope {
	return &SecureEnvelope{crypto: crypto, local: local}
}

// EncryptBody encrypts+signs an already-serialized body for recipient.
// Returns a KindConfiguration api.Error if the local key has no usable
// signing key, or a KindExternal api.Error if recipient has no usable
// encryption subkey (spec.md §4.3).
func (e *SecureEnvelope) EncryptBody(plaintext []byte, recipient api.Key) ([]byte, error) {
	logger.Debugw("encrypting body", "recipient", recipient.ID(), "plaintext_len", len(plaintext))

	ciphertext, err := e.crypto.EncryptAndSign(plaintext, e.local, recipient)
	if err != nil {
		return nil, err
	}
	return ciphertext, nil
}

// DecryptBody decrypts ciphertext, verifying it was signed by sender.
// Returns a KindExternal api.Error in any of the four failure modes of
// spec.md §4.3: not addressed to the local key, not signed at all,
// signature verification failure, or signed by a key other than
// sender.
func (e *SecureEnvelope) DecryptBody(ciphertext []byte, sender api.Key) ([]byte, error) {
	logger.Debugw("decrypting body", "sender", sender.ID(), "ciphertext_len", len(ciphertext))

	plaintext, err := e.crypto.DecryptAndVerify(ciphertext, sender, e.local)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
