package decode

import (
	"bytes"
	"errors"
	"testing"
)

func sampleMarc() MarcRecord {
	return MarcRecord{
		ControlFields: []ControlField{{Tag: "001", Data: "ocm123"}, {Tag: "005", Data: "20240101120000.0"}},
		DataFields: []DataField{
			{Tag: "020", Ind1: " ", Ind2: " ", Subfields: []Subfield{{Code: "a", Data: "978-1-2345"}}},
			{Tag: "245", Ind1: "1", Ind2: "0", Subfields: []Subfield{{Code: "a", Data: "Book One"}, {Code: "c", Data: "by Someone"}}},
		},
	}
}

func TestMarcRoundTrip(t *testing.T) {
	blob := append(EncodeMarc(sampleMarc()), '\n')
	blob = append(blob, EncodeMarc(sampleMarc())...)

	records, err := ReadMarc(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("len=%d", len(records))
	}
	rec := records[0]
	if got := rec.Control("001"); got == nil || *got != "ocm123" {
		t.Fatalf("001=%v", got)
	}
	if got := rec.Field("245").Subfield("a"); got == nil || *got != "Book One" {
		t.Fatalf("245a=%v", got)
	}
	if rec.Field("245").Ind1 != "1" {
		t.Fatalf("ind1=%q", rec.Field("245").Ind1)
	}
	if rec.Field("264").Subfield("b") != nil {
		t.Fatal("absent field must yield nil subfield")
	}
	if len(rec.FieldsByTag("020", "022")) != 1 {
		t.Fatal("identifier fields")
	}
}

func TestReadMarcMalformed(t *testing.T) {
	blob := EncodeMarc(sampleMarc())
	_, err := ReadMarc(bytes.NewReader(blob[:len(blob)-10]))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("err=%v", err)
	}

	_, err = ReadMarc(bytes.NewReader([]byte("abcde not a marc record at all")))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadMarcRejectsNegativeDirectoryOffsets(t *testing.T) {
	cases := map[string]struct {
		from, to int
		value    string
	}{
		"start":  {31, 36, "-9999"},
		"length": {27, 31, "-999"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			blob := EncodeMarc(sampleMarc())
			copy(blob[tc.from:tc.to], tc.value)
			records, err := ReadMarc(bytes.NewReader(blob))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("records=%v err=%v", records, err)
			}
		})
	}
}

func TestLooksLikeMarcLeader(t *testing.T) {
	if !LooksLikeMarcLeader(EncodeMarc(sampleMarc())) {
		t.Fatal("encoded record should carry a valid leader")
	}
	if LooksLikeMarcLeader([]byte("<?xml version=\"1.0\"?><ONIXMessage>")) {
		t.Fatal("xml head detected as leader")
	}
	if LooksLikeMarcLeader([]byte("00042")) {
		t.Fatal("short head detected as leader")
	}
}
