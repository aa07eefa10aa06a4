// Package neighbours implements the bounded, concurrency-safe set of
// peers each KIPA node curates for routing, scored by key-space
// geometry (spec.md §4.2).
package neighbours

import (
	"math"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/keyspace"
)

var logger = logging.Logger("kipa/neighbours")

// DefaultCapacity is used when none is configured.
const DefaultCapacity = 8

// DefaultDistanceWeight and DefaultAngleWeight give both terms of the
// scoring rule (spec.md §4.2) non-zero influence.
const (
	DefaultDistanceWeight = 0.5
	DefaultAngleWeight    = 0.5
)

type entry struct {
	node  api.Node
	point keyspace.Point
}

// Store is the thread-safe, bounded, scored neighbour set described in
// spec.md §4.2. It ranks candidates by a weighted sum of a distance
// term (closer to the local node is better) and an angle term (more
// angularly distinct from the rest of the store is better), kept
// re-sorted and truncated to Capacity on every mutation.
type Store struct {
	manager *keyspace.Manager

	localNode  api.Node
	localPoint keyspace.Point

	capacity       int
	distanceWeight float64
	angleWeight    float64

	mu      sync.Mutex
	entries []entry
}

// NewStore constructs a Store for localNode, which is never itself
// admitted as a candidate.
func NewStore(manager *keyspace.Manager, localNode api.Node, capacity int, distanceWeight, angleWeight float64) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		manager:        manager,
		localNode:      localNode,
		localPoint:     manager.Project(localNode.Key.Data()),
		capacity:       capacity,
		distanceWeight: distanceWeight,
		angleWeight:    angleWeight,
	}
}

// ConsiderCandidate offers node to the store. If node is the local
// node it is ignored; otherwise it is inserted (replacing any existing
// entry with the same key-id), the full set is re-scored, deduplicated
// by key-space point, and truncated to Capacity. Idempotent for
// already-known keys. fromSender records whether the candidate arrived
// as the identified sender of a request (kept for callers that want to
// log provenance; the scoring rule itself does not use it).
func (s *Store) ConsiderCandidate(node api.Node, fromSender bool) {
	if node.Key.Equal(s.localNode.Key) {
		return
	}
	point := s.manager.Project(node.Key.Data())

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.entries[:0:0]
	for _, e := range s.entries {
		if e.node.Key.ID() != node.Key.ID() {
			filtered = append(filtered, e)
		}
	}
	filtered = append(filtered, entry{node: node, point: point})
	s.entries = s.rescore(filtered)

	logger.Debugw("considered candidate", "node", node.String(), "from_sender", fromSender, "store_size", len(s.entries))
}

// rescore sorts entries by the spec.md §4.2 scoring rule (lower is
// better), deduplicates by key-space point, and truncates to capacity.
// Must be called with s.mu held.
func (s *Store) rescore(entries []entry) []entry {
	maxDist := 1.0
	for _, e := range entries {
		if d := keyspace.Distance(s.localPoint, e.point); d > maxDist {
			maxDist = d
		}
	}

	scores := make(map[string]float64, len(entries))
	for i, e := range entries {
		distTerm := keyspace.Distance(s.localPoint, e.point) / maxDist

		minAngle := math.Pi
		if len(entries) > 1 {
			minAngle = math.Pi
			for j, o := range entries {
				if i == j {
					continue
				}
				if a := keyspace.Angle(s.localPoint, e.point, o.point); a < minAngle {
					minAngle = a
				}
			}
		}
		angleTerm := minAngle / math.Pi

		scores[e.node.Key.ID()] = s.distanceWeight*distTerm - s.angleWeight*angleTerm
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return scores[entries[i].node.Key.ID()] < scores[entries[j].node.Key.ID()]
	})

	entries = keyspace.Deduplicate(entries, func(e entry) keyspace.Point { return e.point })
	// Deduplicate reorders by distance to its first element; restore
	// scored order before truncating.
	sort.SliceStable(entries, func(i, j int) bool {
		return scores[entries[i].node.Key.ID()] < scores[entries[j].node.Key.ID()]
	})

	if len(entries) > s.capacity {
		entries = entries[:s.capacity]
	}
	return entries
}

// GetNClosest projects key and returns up to n stored neighbours
// sorted by distance to it.
func (s *Store) GetNClosest(key api.Key, n int) []api.Node {
	target := s.manager.Project(key.Data())

	s.mu.Lock()
	snapshot := make([]entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	keyspace.SortByDistance(snapshot, target, func(e entry) keyspace.Point { return e.point })

	if n > len(snapshot) {
		n = len(snapshot)
	}
	out := make([]api.Node, n)
	for i := 0; i < n; i++ {
		out[i] = snapshot[i].node
	}
	return out
}

// GetAll returns a stable snapshot of every stored neighbour, in
// scored order.
func (s *Store) GetAll() []api.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Node, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.node
	}
	return out
}

// Len returns the current number of stored neighbours.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RemoveByKeyID removes the neighbour with the given key-id, if
// present. Silent if absent.
func (s *Store) RemoveByKeyID(keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.node.Key.ID() == keyID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			logger.Debugw("removed neighbour", "key_id", keyID)
			return
		}
	}
}
