package retrieval

// chunkSet is a compact bitset over chunk indices [0, n).
// Each bit only ever goes from clear to set within a session.
type chunkSet struct {
	n     uint32
	count uint32
	words []uint64
}

func newChunkSet(n uint32) *chunkSet {
	return &chunkSet{
		n:     n,
		words: make([]uint64, (uint64(n)+63)/64),
	}
}

// Len returns the number of indices covered by the set.
func (s *chunkSet) Len() uint32 {
	return s.n
}

// Has reports whether index i is set. Out-of-range indices are never set.
func (s *chunkSet) Has(i uint32) bool {
	if i >= s.n {
		return false
	}
	return s.words[i/64]&(1<<(i%64)) != 0
}

// Mark sets index i and reports whether it changed the set.
func (s *chunkSet) Mark(i uint32) bool {
	if i >= s.n {
		return false
	}
	mask := uint64(1) << (i % 64)
	if s.words[i/64]&mask != 0 {
		return false
	}
	s.words[i/64] |= mask
	s.count++
	return true
}

// Count returns the number of set indices.
func (s *chunkSet) Count() uint32 {
	return s.count
}

// Full reports whether every index is set.
func (s *chunkSet) Full() bool {
	return s.count == s.n
}
