package pipeline

// stringSet is an insertion-ordered set. Membership is exact string
// equality; Values emits members in first-added order.
type stringSet struct {
	items []string
	seen  map[string]struct{}
}

func newStringSet(values ...string) *stringSet {
	s := &stringSet{seen: map[string]struct{}{}}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s *stringSet) Add(v string) bool {
	if _, ok := s.seen[v]; ok {
		return false
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

func (s *stringSet) Len() int {
	return len(s.items)
}

func (s *stringSet) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
