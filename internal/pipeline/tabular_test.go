package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bibmerge/internal"
)

func primaryRow(title, publisher, material, subject string) internal.FieldMap {
	return internal.FieldMap{
		colTitleSubtitle: title,
		colPublisher:     publisher,
		colMaterialType:  material,
		colSubject:       subject,
	}
}

func TestMergeTabularGroupsSubjects(t *testing.T) {
	primary := []internal.FieldMap{
		primaryRow("Cat", "Acme", "Book", "Animals"),
		primaryRow("Cat", "Acme", "Book", "Pets"),
	}

	res := MergeTabular(primary, nil)

	require.Len(t, res.Records, 1)
	require.Equal(t, []string{"Animals", "Pets"}, res.Records[0].Subjects)
	require.Len(t, res.Issues, 1)
	require.Equal(t, []string{
		"Missing ISBN",
		"Missing Publication Year",
		"Missing LCCN",
		"Missing Copies Data",
		"Missing Author",
	}, res.Issues[0].Issues)
	require.Equal(t, "csv", res.Issues[0].Source)
	require.Equal(t, "Cat", *res.Issues[0].Title)
}

func TestMergeTabularKeyIgnoresCaseAndSpacing(t *testing.T) {
	primary := []internal.FieldMap{
		primaryRow("Cat", "Acme", "Book", "Animals"),
		primaryRow("  CAT ", "acme", "book ", "Animals"),
		primaryRow("Cat", "Acme", "Book", ""),
	}

	res := MergeTabular(primary, nil)

	require.Len(t, res.Records, 1)
	require.Equal(t, "Cat", *res.Records[0].Title, "first occurrence seeds scalar fields")
	require.Equal(t, []string{"Animals"}, res.Records[0].Subjects)
}

func TestMergeTabularJoinsSupplementary(t *testing.T) {
	primary := []internal.FieldMap{
		{
			colTitleSubtitle:   "Cat",
			colPublisher:       "Acme",
			colMaterialType:    "Book",
			colSubject:         "Animals",
			colPublicationYear: "2020",
		},
	}
	supplementary := []internal.FieldMap{
		{colTitle: "cat", colPublisher: "ACME", colMaterialType: "Book", colLCCN: "old", colTotalCopies: "1"},
		{
			colTitle:            "cat",
			colPublisher:        "ACME",
			colMaterialType:     "Book",
			colStandardNumber:   "978-1",
			colAuthor:           "Jane Doe",
			colLCCN:             "2001012345",
			colTotalCopies:      "1,200",
			colCopiesAvailable:  "3",
			colCopiesCheckedOut: "x",
			colCopiesLost:       "-2",
		},
	}

	res := MergeTabular(primary, supplementary)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	require.Equal(t, "978-1", *rec.ISBN)
	require.Equal(t, "Jane Doe", *rec.Author)
	require.Equal(t, "2001012345", *rec.LCCN, "last supplementary row wins")
	require.Equal(t, internal.Copies{Total: 1200, Available: 3}, rec.Copies)
	require.Empty(t, res.Issues)
}

func TestMergeTabularPrefersPrimaryISBN(t *testing.T) {
	row := primaryRow("Cat", "Acme", "Book", "Animals")
	row[colISBN] = "111"
	supplementary := []internal.FieldMap{
		{colTitle: "Cat", colPublisher: "Acme", colMaterialType: "Book", colStandardNumber: "222"},
	}

	res := MergeTabular([]internal.FieldMap{row}, supplementary)

	require.Equal(t, "111", *res.Records[0].ISBN)
}

func TestMergeTabularPreservesFirstSeenOrder(t *testing.T) {
	primary := []internal.FieldMap{
		primaryRow("Zebra", "Acme", "Book", "Animals"),
		primaryRow("Apple", "Acme", "Book", "Food"),
		primaryRow("Zebra", "Acme", "Book", "Stripes"),
		primaryRow("Moon", "Acme", "DVD", "Space"),
	}

	res := MergeTabular(primary, nil)

	titles := []string{}
	for _, rec := range res.Records {
		titles = append(titles, *rec.Title)
	}
	require.Equal(t, []string{"Zebra", "Apple", "Moon"}, titles)

	issueTitles := []string{}
	for _, issue := range res.Issues {
		issueTitles = append(issueTitles, *issue.Title)
	}
	require.Equal(t, titles, issueTitles)
}

func TestRemergeTabularIsIdempotent(t *testing.T) {
	primary := []internal.FieldMap{
		primaryRow("Cat", "Acme", "Book", "Animals"),
		primaryRow("Cat", "Acme", "Book", "Pets"),
		primaryRow("Dog", "Acme", "Book", "Animals"),
	}
	supplementary := []internal.FieldMap{
		{colTitle: "Dog", colPublisher: "Acme", colMaterialType: "Book", colLCCN: "99", colTotalCopies: "4"},
	}
	first := MergeTabular(primary, supplementary)

	again := RemergeTabular(first.Records, nil)

	require.Equal(t, first.Records, again.Records)
	require.Equal(t, first.Issues, again.Issues)
}

func TestMergeTabularFlagsEveryMissingField(t *testing.T) {
	res := MergeTabular([]internal.FieldMap{{}}, nil)

	require.Len(t, res.Records, 1)
	require.NotNil(t, res.Records[0].Subjects)
	require.Len(t, res.Issues[0].Issues, 9)
	require.Equal(t, "Missing Title", res.Issues[0].Issues[6])
}
