package catalog

import "testing"

func TestIndexFirstMatchIsEarliestAccepted(t *testing.T) {
	idx := NewIndex()
	idx.Add(0, []string{"A"})
	idx.Add(1, []string{"B", "C"})
	idx.Add(2, []string{"C", "A", "A"})

	pos, ok := idx.FirstMatch([]string{"C"})
	if !ok || pos != 1 {
		t.Fatalf("pos=%d ok=%v", pos, ok)
	}
	pos, ok = idx.FirstMatch([]string{"C", "A"})
	if !ok || pos != 0 {
		t.Fatalf("pos=%d ok=%v", pos, ok)
	}
	if _, ok := idx.FirstMatch([]string{"Z"}); ok {
		t.Fatal("unexpected match")
	}
	if _, ok := idx.FirstMatch(nil); ok {
		t.Fatal("no identifiers must never match")
	}
	if len(idx.ByIdentifier["A"]) != 2 {
		t.Fatalf("A=%v", idx.ByIdentifier["A"])
	}
	if idx.Len() != 3 {
		t.Fatalf("len=%d", idx.Len())
	}
}
