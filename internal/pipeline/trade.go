package pipeline

import (
	"fmt"
	"strings"

	"bibmerge/internal"
	"bibmerge/internal/decode"
	"bibmerge/internal/util"
)

// isbnProductIDType is the ONIX code list 5 value for ISBN-13.
const isbnProductIDType = "15"

// accessor reads one logical field from a product in one tag flavour and
// returns "" when that flavour does not carry it.
type accessor func(p *decode.Node) string

func path(names ...string) accessor {
	return func(p *decode.Node) string { return p.Value(names...) }
}

// Accessors per logical field, tried in order; the first non-empty value
// wins. Short tags come first, reference tags second, ONIX 2.1 placements
// last.
var (
	isbnAccessors = []accessor{
		identifierAccessor("productidentifier", "b221", "b244"),
		identifierAccessor("ProductIdentifier", "ProductIDType", "IDValue"),
	}
	titleAccessors = []accessor{
		path("descriptivedetail", "titledetail", "titleelement", "b203"),
		path("DescriptiveDetail", "TitleDetail", "TitleElement", "TitleText"),
		path("title", "b203"),
		path("Title", "TitleText"),
	}
	authorAccessors = []accessor{
		contributorAccessor("descriptivedetail", "contributor", "b036"),
		contributorAccessor("DescriptiveDetail", "Contributor", "PersonName"),
		contributorAccessor("", "contributor", "b036"),
		contributorAccessor("", "Contributor", "PersonName"),
	}
	publisherAccessors = []accessor{
		path("publishingdetail", "publisher", "b081"),
		path("PublishingDetail", "Publisher", "PublisherName"),
		path("publisher", "b081"),
		path("Publisher", "PublisherName"),
	}
	priceAccessors = []accessor{
		path("productsupply", "supplydetail", "price", "j151"),
		path("ProductSupply", "SupplyDetail", "Price", "PriceAmount"),
		path("supplydetail", "price", "j151"),
		path("SupplyDetail", "Price", "PriceAmount"),
	}
	publicationDateAccessors = []accessor{
		path("publishingdetail", "publishingdate", "b306"),
		path("PublishingDetail", "PublishingDate", "Date"),
		path("b003"),
		path("PublicationDate"),
	}
	subjectContainers = [][]string{
		{"descriptivedetail", "subject"},
		{"DescriptiveDetail", "Subject"},
		{"subject"},
		{"Subject"},
	}
	subjectValueTags = []string{"b070", "SubjectHeadingText", "b069", "SubjectCode"}
)

func identifierAccessor(container, typeTag, valueTag string) accessor {
	return func(p *decode.Node) string {
		for _, id := range p.ChildrenNamed(container) {
			if id.Value(typeTag) == isbnProductIDType {
				if v := id.Value(valueTag); v != "" {
					return v
				}
			}
		}
		return ""
	}
}

func contributorAccessor(parent, container, nameTag string) accessor {
	return func(p *decode.Node) string {
		holder := p
		if parent != "" {
			holder = p.Child(parent)
		}
		names := []string{}
		for _, c := range holder.ChildrenNamed(container) {
			if v := c.Value(nameTag); v != "" {
				names = append(names, v)
			}
		}
		return strings.Join(names, ", ")
	}
}

func firstValue(p *decode.Node, accessors []accessor) *string {
	for _, get := range accessors {
		if v := get(p); v != "" {
			return &v
		}
	}
	return nil
}

func extractSubjects(p *decode.Node) []string {
	set := newStringSet()
	for _, container := range subjectContainers {
		parent := p
		if len(container) > 1 {
			parent = p.Find(container[:len(container)-1]...)
		}
		for _, s := range parent.ChildrenNamed(container[len(container)-1]) {
			for _, tag := range subjectValueTags {
				if v := s.Value(tag); v != "" {
					set.Add(v)
					break
				}
			}
		}
		if set.Len() > 0 {
			break
		}
	}
	return set.Values()
}

// ExtractProduct reads the canonical trade fields of one product, tagging
// it with source.
func ExtractProduct(p *decode.Node, source string) internal.TradeRecord {
	return internal.TradeRecord{
		ISBN:            firstValue(p, isbnAccessors),
		Title:           firstValue(p, titleAccessors),
		Author:          firstValue(p, authorAccessors),
		Publisher:       firstValue(p, publisherAccessors),
		Price:           firstValue(p, priceAccessors),
		Subjects:        extractSubjects(p),
		PublicationDate: firstValue(p, publicationDateAccessors),
		Source:          source,
	}
}

type TradeResult struct {
	Records []internal.TradeRecord
	Issues  []internal.Issue
}

// TradeMerger folds products from several feeds into one record per key.
type TradeMerger struct {
	byKey    map[string]*internal.TradeRecord
	subjects map[string]*stringSet
	order    []string
	log      *IssueLog
}

func NewTradeMerger() *TradeMerger {
	return &TradeMerger{
		byKey:    map[string]*internal.TradeRecord{},
		subjects: map[string]*stringSet{},
		log:      NewIssueLog(internal.FamilyTrade),
	}
}

// Add checks rec for missing fields, then inserts it or merges it into the
// record already stored under its key.
func (m *TradeMerger) Add(rec internal.TradeRecord) {
	m.logMissingFields(rec)

	key := TradeKey(rec.ISBN, rec.Title)
	existing, ok := m.byKey[key]
	if !ok {
		stored := rec
		stored.Subjects = nil
		m.byKey[key] = &stored
		m.subjects[key] = newStringSet(rec.Subjects...)
		m.order = append(m.order, key)
		return
	}

	var p Problems
	p.Flag(!util.EqualPtr(existing.Author, rec.Author), conflict("Author", existing.Author, rec.Author))
	p.Flag(!util.EqualPtr(existing.Publisher, rec.Publisher), conflict("Publisher", existing.Publisher, rec.Publisher))
	p.Flag(!util.EqualPtr(existing.Price, rec.Price), conflict("Price", existing.Price, rec.Price))
	m.log.Add(internal.Issue{
		Title:   rec.Title,
		ISBN:    rec.ISBN,
		Issues:  p,
		Sources: []string{existing.Source, rec.Source},
	})

	existing.Author = util.FirstPresent(existing.Author, rec.Author)
	existing.Publisher = util.FirstPresent(existing.Publisher, rec.Publisher)
	existing.Price = util.FirstPresent(existing.Price, rec.Price)
	existing.PublicationDate = util.FirstPresent(existing.PublicationDate, rec.PublicationDate)
	set := m.subjects[key]
	for _, s := range rec.Subjects {
		set.Add(s)
	}
}

func (m *TradeMerger) logMissingFields(rec internal.TradeRecord) {
	missing := []string{}
	if rec.ISBN == nil {
		missing = append(missing, "ISBN")
	}
	if rec.Title == nil {
		missing = append(missing, "Title")
	}
	if rec.Author == nil {
		missing = append(missing, "Author")
	}
	if len(missing) == 0 {
		return
	}
	m.log.Add(internal.Issue{
		Title:  util.StringPtr(util.FirstNonEmpty(util.Deref(rec.Title), internal.UnknownTitlePlaceholder)),
		ISBN:   util.StringPtr(util.FirstNonEmpty(util.Deref(rec.ISBN), internal.UnknownISBNPlaceholder)),
		Issues: []string{"Missing fields: " + strings.Join(missing, ", ")},
		Source: rec.Source,
	})
}

// Result returns merged records in first-insertion order and the issues
// in detection order.
func (m *TradeMerger) Result() TradeResult {
	out := make([]internal.TradeRecord, 0, len(m.order))
	for _, key := range m.order {
		rec := *m.byKey[key]
		rec.Subjects = m.subjects[key].Values()
		out = append(out, rec)
	}
	return TradeResult{Records: out, Issues: m.log.Entries()}
}

// MergeTrade extracts and merges feed A fully, then feed B.
func MergeTrade(productsA []*decode.Node, sourceA string, productsB []*decode.Node, sourceB string) TradeResult {
	m := NewTradeMerger()
	for _, p := range productsA {
		m.Add(ExtractProduct(p, sourceA))
	}
	for _, p := range productsB {
		m.Add(ExtractProduct(p, sourceB))
	}
	return m.Result()
}

func conflict(field string, existing, incoming *string) string {
	return fmt.Sprintf("%s conflict: '%s' vs '%s'", field, renderValue(existing), renderValue(incoming))
}
