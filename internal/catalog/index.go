package catalog

// Index maps normalized identifiers to the positions of accepted records
// that carry them. Positions are appended in acceptance order, so the first
// entry of each list is the earliest record holding that identifier.
type Index struct {
	ByIdentifier map[string][]int
	size         int
}

func NewIndex() *Index {
	return &Index{ByIdentifier: map[string][]int{}}
}

// Add registers the record accepted at pos under each of its identifiers.
func (idx *Index) Add(pos int, identifiers []string) {
	seen := map[string]struct{}{}
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		idx.ByIdentifier[id] = append(idx.ByIdentifier[id], pos)
	}
	if pos+1 > idx.size {
		idx.size = pos + 1
	}
}

// FirstMatch returns the lowest accepted position sharing at least one
// identifier with identifiers.
func (idx *Index) FirstMatch(identifiers []string) (int, bool) {
	best := -1
	for _, id := range identifiers {
		positions := idx.ByIdentifier[id]
		if len(positions) == 0 {
			continue
		}
		if best < 0 || positions[0] < best {
			best = positions[0]
		}
	}
	return best, best >= 0
}

// Len is the number of accepted positions registered.
func (idx *Index) Len() int {
	return idx.size
}
