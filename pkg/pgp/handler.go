// Package pgp wraps OpenPGP encryption, signing, decryption and
// verification behind a small interface, and loads the passphrase
// protecting the local node's private key material.
package pgp

import (
	"bytes"
	"io"

	"golang.org/x/crypto/openpgp"

	"github.com/pangea-net/kipa/pkg/api"
)

// SigningEncrypter is the contract pkg/envelope builds on: encrypt
// data for a recipient and sign it as the sender, or decrypt data and
// verify it was signed by the claimed sender.
type SigningEncrypter interface {
	EncryptAndSign(data []byte, sender api.SecretKey, recipient api.Key) ([]byte, error)
	DecryptAndVerify(data []byte, sender api.Key, recipient api.SecretKey) ([]byte, error)
}

// OpenPGPHandler implements SigningEncrypter using golang.org/x/crypto/openpgp.
// Key and SecretKey byte blobs are treated as serialized OpenPGP key
// rings (armored or binary), each holding exactly one entity.
type OpenPGPHandler struct{}

// NewOpenPGPHandler constructs an OpenPGPHandler.
func NewOpenPGPHandler() *OpenPGPHandler { return &OpenPGPHandler{} }

func entityFromKeyData(data []byte) (*openpgp.Entity, error) {
	keyring, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil || len(keyring) == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return keyring[0], nil
}

// EncryptAndSign encrypts data for recipient's public key, signed by
// sender's private key. Fails with KindConfiguration if sender carries
// no usable signing key, and KindExternal if recipient carries no
// usable encryption subkey, per spec.md §4.3.
func (h *OpenPGPHandler) EncryptAndSign(data []byte, sender api.SecretKey, recipient api.Key) ([]byte, error) {
	signerEntity, err := entityFromKeyData(sender.Raw())
	if err != nil {
		return nil, api.Wrap(api.KindConfiguration, "no usable signing key for local node", err)
	}
	recipientEntity, err := entityFromKeyData(recipient.Data())
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "no suitable recipient key found", err)
	}

	var buf bytes.Buffer
	w, err := openpgp.Encrypt(&buf, []*openpgp.Entity{recipientEntity}, signerEntity, nil, nil)
	if err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to open encryption stream", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to write plaintext body", err)
	}
	if err := w.Close(); err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to finalize encryption", err)
	}
	return buf.Bytes(), nil
}

// DecryptAndVerify decrypts data addressed to recipient's private key
// and checks it was signed by sender. Fails with KindExternal if the
// data is not addressed to recipient, was not signed, or the
// signature does not check out against sender, per spec.md §4.3.
func (h *OpenPGPHandler) DecryptAndVerify(data []byte, sender api.Key, recipient api.SecretKey) ([]byte, error) {
	senderEntity, err := entityFromKeyData(sender.Data())
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "unknown sender key", err)
	}
	recipientEntity, err := entityFromKeyData(recipient.Raw())
	if err != nil {
		return nil, api.Wrap(api.KindConfiguration, "no suitable subkey for local node", err)
	}

	keyring := openpgp.EntityList{senderEntity, recipientEntity}
	md, err := openpgp.ReadMessage(bytes.NewReader(data), keyring, nil, nil)
	if err != nil {
		return nil, api.Wrap(api.KindExternal, "message was not addressed to this node", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, api.Wrap(api.KindInternal, "failed to read decrypted body", err)
	}
	if md.SignatureError != nil {
		return nil, api.Wrap(api.KindExternal, "signature verification failed", md.SignatureError)
	}
	if md.SignedBy == nil || md.SignedBy.Entity != senderEntity {
		return nil, api.NewError(api.KindExternal, "message was not signed by the claimed sender")
	}
	return plaintext, nil
}
