package pgp

import (
	"bytes"
	"fmt"

	"github.com/pangea-net/kipa/pkg/api"
)

// FakeSigningEncrypter is a SigningEncrypter test double that performs
// no real cryptography: it tags plaintext with the sender and
// recipient key-ids and checks the tag on the way back. It lets
// pkg/envelope and its callers be tested without generating real
// OpenPGP key material.
type FakeSigningEncrypter struct{}

// NewFakeSigningEncrypter constructs a FakeSigningEncrypter.
func NewFakeSigningEncrypter() *FakeSigningEncrypter { return &FakeSigningEncrypter{} }

var fakeSeparator = []byte("|")

func (f *FakeSigningEncrypter) EncryptAndSign(data []byte, sender api.SecretKey, recipient api.Key) ([]byte, error) {
	header := []byte(fmt.Sprintf("%s>%s", sender.Public().ID(), recipient.ID()))
	out := make([]byte, 0, len(header)+len(fakeSeparator)+len(data))
	out = append(out, header...)
	out = append(out, fakeSeparator...)
	out = append(out, data...)
	return out, nil
}

func (f *FakeSigningEncrypter) DecryptAndVerify(data []byte, sender api.Key, recipient api.SecretKey) ([]byte, error) {
	parts := bytes.SplitN(data, fakeSeparator, 2)
	if len(parts) != 2 {
		return nil, api.NewError(api.KindExternal, "malformed fake envelope")
	}
	want := fmt.Sprintf("%s>%s", sender.ID(), recipient.Public().ID())
	if string(parts[0]) != want {
		return nil, api.NewError(api.KindExternal, "signature verification failed")
	}
	return parts[1], nil
}
