package hierarchy

// typeSet is an insertion-ordered set of TypeRefs.
type typeSet struct {
	order []TypeRef
	index map[TypeRef]int
}

func newTypeSet(size int) *typeSet {
	return &typeSet{order: make([]TypeRef, 0, size), index: make(map[TypeRef]int, size)}
}

func (s *typeSet) add(t TypeRef) bool {
	if _, ok := s.index[t]; ok {
		return false
	}
	s.index[t] = len(s.order)
	s.order = append(s.order, t)
	return true
}

func (s *typeSet) has(t TypeRef) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[t]
	return ok
}

func (s *typeSet) remove(t TypeRef) {
	i, ok := s.index[t]
	if !ok {
		return
	}
	delete(s.index, t)
	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *typeSet) len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// list returns a copy so callers may not mutate the set.
func (s *typeSet) list() []TypeRef {
	if s == nil {
		return []TypeRef{}
	}
	out := make([]TypeRef, len(s.order))
	copy(out, s.order)
	return out
}
