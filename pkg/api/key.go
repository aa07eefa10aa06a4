package api

// KeyIDLength is the fixed width of a Key's textual id, per spec.md §3.
const KeyIDLength = 8

// Key is a participant's public identity: an opaque key-id plus the
// serialized public-key material it was derived from. Keys are
// immutable once constructed and compare equal iff their key-ids match.
type Key struct {
	id   string
	data []byte
}

// NewKey validates and constructs a Key. The key-id must be exactly
// KeyIDLength bytes; this is a parse error, never a fatal assertion
// (spec.md §9 open question).
func NewKey(id string, data []byte) (Key, error) {
	if len(id) != KeyIDLength {
		return Key{}, ParseError("key id must be %d characters, got %d", KeyIDLength, len(id))
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return Key{id: id, data: cp}, nil
}

// ID returns the key's 8-character identifier.
func (k Key) ID() string { return k.id }

// Data returns the serialized public-key material. Callers must not
// mutate the returned slice.
func (k Key) Data() []byte { return k.data }

// Equal implements key-id equality, per spec.md §3.
func (k Key) Equal(other Key) bool { return k.id == other.id }

func (k Key) String() string { return k.id }

// SecretKey is the private half of a Key. It is owned by the local
// node for its full lifetime and is never transmitted.
type SecretKey struct {
	public Key
	raw    []byte
}

// NewSecretKey constructs a SecretKey paired with its public Key.
func NewSecretKey(public Key, raw []byte) SecretKey {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return SecretKey{public: public, raw: cp}
}

// Public returns the Key half of this secret.
func (s SecretKey) Public() Key { return s.public }

// Raw exposes the raw secret-key bytes. Named distinctly from a
// plain field/getter pair to make call sites that touch key material
// grep-able.
func (s SecretKey) Raw() []byte { return s.raw }
