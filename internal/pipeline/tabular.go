package pipeline

import (
	"bibmerge/internal"
	"bibmerge/internal/util"
)

// Primary export columns (one row per subject entry).
const (
	colTitleSubtitle   = "Title/Subtitle"
	colPublisher       = "Publisher"
	colMaterialType    = "Material Type"
	colSubject         = "Subject"
	colAuthor          = "Author"
	colISBN            = "ISBN"
	colPublicationYear = "Publication Year"
)

// Supplementary export columns (one row per title).
const (
	colTitle            = "Title"
	colStandardNumber   = "Standard Number"
	colLCCN             = "LCCN"
	colTotalCopies      = "Total Copies"
	colCopiesAvailable  = "Copies Available"
	colCopiesCheckedOut = "Copies Checked Out"
	colCopiesLost       = "Copies Lost"
)

type TabularResult struct {
	Records []internal.TabularRecord
	Issues  []internal.Issue
}

type tabularGroup struct {
	record   internal.TabularRecord
	subjects *stringSet
}

// MergeTabular groups primary rows by title/publisher/material type, joins
// each group against the supplementary export and flags incomplete records.
// Records and issues come out in first-seen key order.
func MergeTabular(primary, supplementary []internal.FieldMap) TabularResult {
	seeds := make([]internal.TabularRecord, 0, len(primary))
	for _, row := range primary {
		seeds = append(seeds, primaryRowToRecord(row))
	}
	return mergeTabular(seeds, supplementary)
}

// RemergeTabular runs already merged records through the same grouping,
// join and checks. Without supplementary rows the records come back
// unchanged.
func RemergeTabular(records []internal.TabularRecord, supplementary []internal.FieldMap) TabularResult {
	return mergeTabular(records, supplementary)
}

func mergeTabular(rows []internal.TabularRecord, supplementary []internal.FieldMap) TabularResult {
	groups := groupTabular(rows)
	lookup := supplementaryLookup(supplementary)
	log := NewIssueLog(internal.FamilyTabular)

	out := make([]internal.TabularRecord, 0, len(groups))
	for _, g := range groups {
		rec := g.record
		rec.Subjects = g.subjects.Values()
		if match, ok := lookup[TabularKey(rec.Title, rec.Publisher, rec.MaterialType)]; ok {
			applySupplementary(&rec, match)
		}
		log.Add(tabularIssue(rec))
		out = append(out, rec)
	}
	return TabularResult{Records: out, Issues: log.Entries()}
}

func primaryRowToRecord(row internal.FieldMap) internal.TabularRecord {
	rec := internal.TabularRecord{
		Title:           row.Get(colTitleSubtitle),
		MaterialType:    row.Get(colMaterialType),
		Author:          row.Get(colAuthor),
		ISBN:            row.Get(colISBN),
		Publisher:       row.Get(colPublisher),
		PublicationYear: row.Get(colPublicationYear),
	}
	if subject := row.Get(colSubject); subject != nil {
		rec.Subjects = []string{*subject}
	}
	return rec
}

// groupTabular keeps the first record per key as the group's scalar seed
// and unions every record's subjects into the group.
func groupTabular(rows []internal.TabularRecord) []*tabularGroup {
	byKey := map[string]*tabularGroup{}
	order := []*tabularGroup{}
	for _, row := range rows {
		key := TabularKey(row.Title, row.Publisher, row.MaterialType)
		g, ok := byKey[key]
		if !ok {
			g = &tabularGroup{record: row, subjects: newStringSet()}
			byKey[key] = g
			order = append(order, g)
		}
		for _, s := range row.Subjects {
			if s == "" {
				continue
			}
			g.subjects.Add(s)
		}
	}
	return order
}

// supplementaryLookup indexes the supplementary export by the same
// composite key. Later rows overwrite earlier ones.
func supplementaryLookup(rows []internal.FieldMap) map[string]internal.FieldMap {
	out := make(map[string]internal.FieldMap, len(rows))
	for _, row := range rows {
		out[TabularKey(row.Get(colTitle), row.Get(colPublisher), row.Get(colMaterialType))] = row
	}
	return out
}

func applySupplementary(rec *internal.TabularRecord, match internal.FieldMap) {
	rec.ISBN = util.FirstPresent(rec.ISBN, match.Get(colStandardNumber))
	rec.Author = util.FirstPresent(rec.Author, match.Get(colAuthor))
	rec.LCCN = match.Get(colLCCN)
	rec.Copies = internal.Copies{
		Total:      util.ParseCount(match.Get(colTotalCopies)),
		Available:  util.ParseCount(match.Get(colCopiesAvailable)),
		CheckedOut: util.ParseCount(match.Get(colCopiesCheckedOut)),
		Lost:       util.ParseCount(match.Get(colCopiesLost)),
	}
}

func tabularIssue(rec internal.TabularRecord) internal.Issue {
	var p Problems
	p.Flag(rec.ISBN == nil, "Missing ISBN")
	p.Flag(rec.Publisher == nil, "Missing Publisher")
	p.Flag(rec.PublicationYear == nil, "Missing Publication Year")
	p.Flag(rec.LCCN == nil, "Missing LCCN")
	p.Flag(len(rec.Subjects) == 0, "Missing Subjects")
	p.Flag(rec.Copies.Total == 0, "Missing Copies Data")
	p.Flag(rec.Title == nil, "Missing Title")
	p.Flag(rec.MaterialType == nil, "Missing Material Type")
	p.Flag(rec.Author == nil, "Missing Author")

	return internal.Issue{
		Title:        rec.Title,
		MaterialType: rec.MaterialType,
		Publisher:    rec.Publisher,
		Issues:       p,
	}
}
