package keyspace

import (
	"encoding/binary"
	"math"
	"math/big"
	"sort"
)

// DefaultDimensions is the dimensionality used when none is
// configured, per spec.md §3 ("default 2").
const DefaultDimensions = 2

// Manager projects Key byte blobs into Points of a fixed
// dimensionality and provides the geometric primitives the
// neighbour store and graph search build on.
type Manager struct {
	dimensions int
}

// NewManager constructs a Manager for the given dimensionality.
func NewManager(dimensions int) *Manager {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Manager{dimensions: dimensions}
}

// Dimensions returns D.
func (m *Manager) Dimensions() int { return m.dimensions }

// Project maps a Key's byte blob into a Point, per spec.md §4.1:
// split into 4*D-byte chunks, XOR-fold byte positions across chunks,
// then read the folded 4*D bytes as D big-endian signed int32s.
func (m *Manager) Project(data []byte) Point {
	chunkLen := 4 * m.dimensions
	folded := make([]byte, chunkLen)
	for offset := 0; offset < len(data); offset += chunkLen {
		end := offset + chunkLen
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		for pos, b := range chunk {
			folded[pos] ^= b
		}
	}
	coords := make([]int32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		coords[i] = int32(binary.BigEndian.Uint32(folded[i*4 : i*4+4]))
	}
	return NewPoint(coords)
}

// Distance computes the toroidal Minkowski-like distance between two
// Points, per spec.md §4.1: per-axis absolute difference widened to
// 64-bit, ring-wrapped by min(diff, 2^32-diff), summed, then the D-th
// root is taken. Always non-negative and symmetric.
func Distance(a, b Point) float64 {
	d := a.Dimensions()
	var sum float64
	for i := 0; i < d; i++ {
		diff := int64(a.Coord(i)) - int64(b.Coord(i))
		if diff < 0 {
			diff = -diff
		}
		ring := diff
		if wrapped := (int64(1) << 32) - diff; wrapped < ring {
			ring = wrapped
		}
		sum += float64(ring)
	}
	if d == 0 {
		return 0
	}
	return math.Pow(sum, 1.0/float64(d))
}

// Angle computes the interior angle at vertex relativeTo between A
// and B: arccos of the normalised dot product of (A-relativeTo) and
// (B-relativeTo), widened to 128-bit (math/big) to avoid overflow for
// coordinates at the extremes of the signed-32-bit range, per spec.md
// §4.1 and §9. Clamped to [-1, 1] before arccos. Zero if either vector
// is the zero vector.
func Angle(relativeTo, a, b Point) float64 {
	d := relativeTo.Dimensions()
	vecA := make([]*big.Int, d)
	vecB := make([]*big.Int, d)
	for i := 0; i < d; i++ {
		vecA[i] = big.NewInt(int64(a.Coord(i)) - int64(relativeTo.Coord(i)))
		vecB[i] = big.NewInt(int64(b.Coord(i)) - int64(relativeTo.Coord(i)))
	}

	dot := new(big.Int)
	magASq := new(big.Int)
	magBSq := new(big.Int)
	term := new(big.Int)
	for i := 0; i < d; i++ {
		dot.Add(dot, term.Mul(vecA[i], vecB[i]))
		magASq.Add(magASq, term.Mul(vecA[i], vecA[i]))
		magBSq.Add(magBSq, term.Mul(vecB[i], vecB[i]))
	}

	if magASq.Sign() == 0 || magBSq.Sign() == 0 {
		return 0
	}

	dotF := new(big.Float).SetInt(dot)
	magAF := new(big.Float).Sqrt(new(big.Float).SetInt(magASq))
	magBF := new(big.Float).Sqrt(new(big.Float).SetInt(magBSq))
	denom := new(big.Float).Mul(magAF, magBF)
	cosF := new(big.Float).Quo(dotF, denom)
	cos, _ := cosF.Float64()

	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos)
}

// SortByDistance stably sorts items in place by the distance of each
// element's Point to target.
func SortByDistance[T any](items []T, target Point, point func(T) Point) {
	sort.SliceStable(items, func(i, j int) bool {
		return Distance(point(items[i]), target) < Distance(point(items[j]), target)
	})
}

// Deduplicate removes elements whose Points equal another's, keeping
// one representative. Implemented as sort-by-distance-to-first-
// element followed by adjacent-duplicate removal, per spec.md §4.1.
// Equal Points that the sort leaves apart, with a different Point at
// the same distance between them, are not removed.
func Deduplicate[T any](items []T, point func(T) Point) []T {
	if len(items) <= 1 {
		return items
	}
	first := point(items[0])
	SortByDistance(items, first, point)

	out := items[:1]
	for i := 1; i < len(items); i++ {
		if !point(items[i]).Equal(point(out[len(out)-1])) {
			out = append(out, items[i])
		}
	}
	return out
}
