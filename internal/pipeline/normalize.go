package pipeline

import (
	"bibmerge/internal/util"
)

// TabularKey identifies one work in the spreadsheet exports:
// title | publisher | material type, each normalized.
func TabularKey(title, publisher, materialType *string) string {
	return util.CompositeKey(title, publisher, materialType)
}

// TradeKey is the ISBN when present, otherwise the normalized title.
func TradeKey(isbn, title *string) string {
	if isbn != nil {
		return *isbn
	}
	return util.NormalizePtr(title)
}

// normalizeIdentifiers applies util.NormalizeIdentifier to every id, keeping
// order and dropping blanks.
func normalizeIdentifiers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		norm := util.NormalizeIdentifier(id)
		if norm == "" {
			continue
		}
		out = append(out, norm)
	}
	return out
}
