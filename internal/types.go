package internal

import "strings"

type SourceFamily string

const (
	FamilyTabular SourceFamily = "csv"
	FamilyCatalog SourceFamily = "marc"
	FamilyTrade   SourceFamily = "onix"
	FamilyUnknown SourceFamily = "unknown"
)

// Collection names the persistence layer stores pipeline output under.
const (
	CollectionBooksCSV   = "books_csv"
	CollectionBooksMARC  = "books_marc"
	CollectionBooksONIX  = "books_onix"
	CollectionCSVIssues  = "csvIssuesLog"
	CollectionMARCIssues = "marcIssuesLog"
	CollectionONIXIssues = "onixIssuesLog"
)

const (
	UnknownCallNumber       = "Unknown Call Number"
	UnknownTitlePlaceholder = "Unknown Title"
	UnknownISBNPlaceholder  = "Unknown ISBN"
)

// FieldMap is one decoded tabular row, header -> cell value.
type FieldMap map[string]string

// Get returns the trimmed value for key, or nil when absent or blank.
func (f FieldMap) Get(key string) *string {
	v, ok := f[key]
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

type Copies struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	CheckedOut int `json:"checkedOut"`
	Lost       int `json:"lost"`
}

type TabularRecord struct {
	Title           *string  `json:"title"`
	MaterialType    *string  `json:"materialType"`
	Author          *string  `json:"author"`
	ISBN            *string  `json:"isbn"`
	Publisher       *string  `json:"publisher"`
	PublicationYear *string  `json:"publicationYear"`
	LCCN            *string  `json:"lccn"`
	Subjects        []string `json:"subjects"`
	Copies          Copies   `json:"copies"`
}

type CatalogFlags struct {
	IsDuplicate   bool `json:"isDuplicate"`
	HasCollision  bool `json:"hasCollision"`
	IsMissingData bool `json:"isMissingData"`
}

type CatalogRecord struct {
	Identifiers         []string     `json:"identifiers"`
	Title               *string      `json:"title"`
	Publisher           *string      `json:"publisher"`
	PublicationYear     *string      `json:"publicationYear"`
	Language            *string      `json:"language"`
	Edition             *string      `json:"edition"`
	ElectronicResource  *string      `json:"electronicResource"`
	CallNumber          string       `json:"callNumber"`
	CallNumberPrefix    *string      `json:"callNumberPrefix"`
	RecordControlNumber *string      `json:"recordControlNumber"`
	RecordTimestamp     *string      `json:"recordTimestamp"`
	FixedData           *string      `json:"fixedData"`
	Flags               CatalogFlags `json:"flags"`
}

type TradeRecord struct {
	ISBN            *string  `json:"isbn"`
	Title           *string  `json:"title"`
	Author          *string  `json:"author"`
	Publisher       *string  `json:"publisher"`
	Price           *string  `json:"price"`
	Subjects        []string `json:"subjects"`
	PublicationDate *string  `json:"publicationDate"`
	Source          string   `json:"source"`
}

// Issue is one record's data-quality report. Identifying fields vary by
// pipeline; Issues is never empty.
type Issue struct {
	Title        *string  `json:"title,omitempty"`
	MaterialType *string  `json:"materialType,omitempty"`
	Publisher    *string  `json:"publisher,omitempty"`
	ISBN         *string  `json:"isbn,omitempty"`
	Record       []string `json:"record,omitempty"`
	Issues       []string `json:"issues"`
	Source       string   `json:"source,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

type RunCounts struct {
	Input    int `json:"input"`
	Records  int `json:"records"`
	Issues   int `json:"issues"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
}
