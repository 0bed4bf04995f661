package hnsw

// visitSet records the identities reached by one layer search. Each search
// runs in its own epoch, so starting over is a counter bump instead of a
// clear.
type visitSet struct {
	epochs []uint32
	epoch  uint32
}

func newVisitSet(n int) *visitSet {
	return &visitSet{epochs: make([]uint32, n), epoch: 1}
}

// mark records id and reports whether it was unseen in the current epoch.
// Identities inserted after the set was sized grow it by half again.
func (s *visitSet) mark(id uint32) bool {
	if i := int(id); i >= len(s.epochs) {
		s.epochs = append(s.epochs, make([]uint32, i+1-len(s.epochs)+len(s.epochs)/2)...)
	}
	if s.epochs[id] == s.epoch {
		return false
	}
	s.epochs[id] = s.epoch
	return true
}

// next starts a new epoch. After 2^32-1 epochs the stamps wrap and are cleared.
func (s *visitSet) next() {
	s.epoch++
	if s.epoch == 0 {
		clear(s.epochs)
		s.epoch = 1
	}
}
