package api

// Node identifies a participant by both its network Address and its
// Key. Two Nodes are equal iff both components are equal; for use in
// search-visited sets a Node is hashed by its Key alone (see
// Key.ID, used directly as the map key by callers).
type Node struct {
	Address Address
	Key     Key
}

// NewNode constructs a Node.
func NewNode(address Address, key Key) Node {
	return Node{Address: address, Key: key}
}

// Equal compares both the Address and the Key.
func (n Node) Equal(other Node) bool {
	return n.Address.Equal(other.Address) && n.Key.Equal(other.Key)
}

func (n Node) String() string {
	return n.Key.String() + "@" + n.Address.String()
}
