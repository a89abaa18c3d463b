package pipeline

import (
	"fmt"
	"strings"

	"bibmerge/internal"
	"bibmerge/internal/catalog"
	"bibmerge/internal/decode"
	"bibmerge/internal/util"
)

// identifierTags carry ISBN (020), system control numbers (035) and
// ISSN (022) in subfield a.
var identifierTags = []string{"020", "035", "022"}

type CatalogResult struct {
	Accepted []internal.CatalogRecord
	Issues   []internal.Issue
	Rejected int
}

// WorkingSet is the growing list of accepted catalog records one run
// compares every new record against. It is owned by a single sequential
// fold and is not safe for concurrent use.
type WorkingSet struct {
	records []internal.CatalogRecord
	index   *catalog.Index
}

func NewWorkingSet() *WorkingSet {
	return &WorkingSet{index: catalog.NewIndex()}
}

func (ws *WorkingSet) Len() int {
	return len(ws.records)
}

// Records returns the accepted records in acceptance order.
func (ws *WorkingSet) Records() []internal.CatalogRecord {
	out := make([]internal.CatalogRecord, len(ws.records))
	copy(out, ws.records)
	return out
}

// firstSharing returns the earliest accepted record sharing an identifier
// with ids.
func (ws *WorkingSet) firstSharing(ids []string) (internal.CatalogRecord, bool) {
	pos, ok := ws.index.FirstMatch(ids)
	if !ok {
		return internal.CatalogRecord{}, false
	}
	return ws.records[pos], true
}

func (ws *WorkingSet) accept(rec internal.CatalogRecord) {
	ws.index.Add(len(ws.records), rec.Identifiers)
	ws.records = append(ws.records, rec)
}

// ExtractCatalogRecord reads the canonical fields of one decoded catalog
// record and returns the missing-data problems found.
func ExtractCatalogRecord(rec decode.MarcRecord) (internal.CatalogRecord, Problems) {
	var p Problems
	out := internal.CatalogRecord{Identifiers: []string{}}

	raw := []string{}
	for _, f := range rec.FieldsByTag(identifierTags...) {
		if id := f.Subfield("a"); id != nil {
			raw = append(raw, *id)
		}
	}
	out.Identifiers = normalizeIdentifiers(raw)
	p.Flag(len(out.Identifiers) == 0, "Missing identifiers (ISBN/AISN)")

	out.Title = rec.Field("245").Subfield("a")
	p.Flag(out.Title == nil, "Missing title")

	publication := rec.Field("264")
	out.Publisher = publication.Subfield("b")
	p.Flag(out.Publisher == nil, "Missing publisher")
	out.PublicationYear = publication.Subfield("c")
	p.Flag(out.PublicationYear == nil, "Missing publication year")

	out.Language = rec.Field("041").Subfield("a")
	p.Flag(out.Language == nil, "Missing language")

	out.Edition = rec.Field("250").Subfield("a")
	p.Flag(out.Edition == nil, "Missing edition")

	out.ElectronicResource = rec.Field("856").Subfield("u")
	p.Flag(out.ElectronicResource == nil, "Missing electronic resource URL")

	// Absent call numbers are tolerated.
	location := rec.Field("852")
	out.CallNumber = internal.UnknownCallNumber
	if h := location.Subfield("h"); h != nil {
		out.CallNumber = *h
	}
	out.CallNumberPrefix = location.Subfield("k")

	out.RecordControlNumber = rec.Control("001")
	out.RecordTimestamp = rec.Control("005")
	out.FixedData = rec.Control("008")

	out.Flags.IsMissingData = !p.Empty()
	return out, p
}

// ClassifyCatalogRecord extracts rec, checks it against the working set and
// appends it unless it duplicates an accepted record. The returned issue is
// nil for clean records.
//
// The collision check looks only at the earliest accepted record sharing an
// identifier; later accepted records with other titles are not compared.
func ClassifyCatalogRecord(ws *WorkingSet, rec decode.MarcRecord) (internal.CatalogRecord, *internal.Issue) {
	data, p := ExtractCatalogRecord(rec)

	existing, shared := ws.firstSharing(data.Identifiers)
	if shared {
		data.Flags.IsDuplicate = true
		p.Add(fmt.Sprintf("Duplicate record found with identifiers: %s", strings.Join(data.Identifiers, ", ")))
		if !util.EqualPtr(existing.Title, data.Title) {
			data.Flags.HasCollision = true
			p.Add(fmt.Sprintf(
				"Collision detected: Identifiers %s have conflicting titles. Existing: %q, New: %q",
				strings.Join(data.Identifiers, ", "), renderValue(existing.Title), renderValue(data.Title),
			))
		}
	}

	if !data.Flags.IsDuplicate {
		ws.accept(data)
	}
	if p.Empty() {
		return data, nil
	}
	return data, &internal.Issue{
		Title:  data.Title,
		Record: data.Identifiers,
		Issues: p,
		Source: string(internal.FamilyCatalog),
	}
}

// ProcessCatalog folds records, in input order, through a fresh working
// set.
func ProcessCatalog(records []decode.MarcRecord) CatalogResult {
	ws := NewWorkingSet()
	log := NewIssueLog(internal.FamilyCatalog)
	rejected := 0
	for _, rec := range records {
		data, issue := ClassifyCatalogRecord(ws, rec)
		if data.Flags.IsDuplicate {
			rejected++
		}
		if issue != nil {
			log.Add(*issue)
		}
	}
	return CatalogResult{Accepted: ws.Records(), Issues: log.Entries(), Rejected: rejected}
}

// renderValue prints an optional value the way the issue log shows absence.
func renderValue(v *string) string {
	if v == nil {
		return "null"
	}
	return *v
}
