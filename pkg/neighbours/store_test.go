package neighbours

import (
	"testing"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
)

func testNode(t *testing.T, id string, port uint16) api.Node {
	t.Helper()
	addr, err := api.NewAddress([]byte{127, 0, 0, 1}, port)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	key, err := api.NewKey(id, []byte(id))
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	return api.NewNode(addr, key)
}

// TestStoreBoundsCapacity fixes K=3 and checks that adding more than
// K candidates never grows the store past its capacity (spec.md §8).
func TestStoreBoundsCapacity(t *testing.T) {
	local := testNode(t, "locallll", 1000)
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := NewStore(manager, local, 3, DefaultDistanceWeight, DefaultAngleWeight)

	ids := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc", "dddddddd", "eeeeeeee", "ffffffff"}
	for i, id := range ids {
		store.ConsiderCandidate(testNode(t, id, uint16(2000+i)), false)
	}

	if got := store.Len(); got > 3 {
		t.Fatalf("store.Len() = %d, want <= 3", got)
	}
}

func TestStoreIgnoresLocalNode(t *testing.T) {
	local := testNode(t, "locallll", 1000)
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := NewStore(manager, local, DefaultCapacity, DefaultDistanceWeight, DefaultAngleWeight)

	store.ConsiderCandidate(local, true)
	if got := store.Len(); got != 0 {
		t.Fatalf("store.Len() = %d after considering the local node, want 0", got)
	}
}

func TestStoreReplacesExistingEntryForSameKey(t *testing.T) {
	local := testNode(t, "locallll", 1000)
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := NewStore(manager, local, DefaultCapacity, DefaultDistanceWeight, DefaultAngleWeight)

	store.ConsiderCandidate(testNode(t, "aaaaaaaa", 2000), false)
	store.ConsiderCandidate(testNode(t, "aaaaaaaa", 2001), false)

	if got := store.Len(); got != 1 {
		t.Fatalf("store.Len() = %d, want 1 after reconsidering the same key-id", got)
	}
}

func TestGetNClosestReturnsRequestedCount(t *testing.T) {
	local := testNode(t, "locallll", 1000)
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := NewStore(manager, local, DefaultCapacity, DefaultDistanceWeight, DefaultAngleWeight)

	for i, id := range []string{"aaaaaaaa", "bbbbbbbb", "cccccccc", "dddddddd"} {
		store.ConsiderCandidate(testNode(t, id, uint16(2000+i)), false)
	}

	closest := store.GetNClosest(local.Key, 2)
	if len(closest) != 2 {
		t.Fatalf("GetNClosest returned %d nodes, want 2", len(closest))
	}
}

func TestRemoveByKeyID(t *testing.T) {
	local := testNode(t, "locallll", 1000)
	manager := keyspace.NewManager(keyspace.DefaultDimensions)
	store := NewStore(manager, local, DefaultCapacity, DefaultDistanceWeight, DefaultAngleWeight)

	store.ConsiderCandidate(testNode(t, "aaaaaaaa", 2000), false)
	store.RemoveByKeyID("aaaaaaaa")

	if got := store.Len(); got != 0 {
		t.Fatalf("store.Len() = %d after removal, want 0", got)
	}
}
