package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ISO 2709 delimiters.
const (
	recordTerminator   = 0x1D
	fieldTerminator    = 0x1E
	subfieldDelimiter  = 0x1F
	leaderLength       = 24
	directoryEntrySize = 12
)

var ErrMalformedRecord = errors.New("malformed catalog record")

type Subfield struct {
	Code string `json:"code"`
	Data string `json:"data"`
}

type ControlField struct {
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

type DataField struct {
	Tag       string     `json:"tag"`
	Ind1      string     `json:"ind1"`
	Ind2      string     `json:"ind2"`
	Subfields []Subfield `json:"subfields"`
}

type MarcRecord struct {
	Leader        string         `json:"leader"`
	ControlFields []ControlField `json:"controlFields"`
	DataFields    []DataField    `json:"dataFields"`
}

// Field returns the first data field with tag, or nil.
func (r MarcRecord) Field(tag string) *DataField {
	for i := range r.DataFields {
		if r.DataFields[i].Tag == tag {
			return &r.DataFields[i]
		}
	}
	return nil
}

// FieldsByTag returns every data field whose tag is in tags, in record order.
func (r MarcRecord) FieldsByTag(tags ...string) []DataField {
	out := []DataField{}
	for _, f := range r.DataFields {
		for _, t := range tags {
			if f.Tag == t {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Control returns the data of the first control field with tag, nil when
// absent or empty.
func (r MarcRecord) Control(tag string) *string {
	for _, f := range r.ControlFields {
		if f.Tag == tag {
			if f.Data == "" {
				return nil
			}
			v := f.Data
			return &v
		}
	}
	return nil
}

// Subfield returns the first subfield with code. A nil field or an empty
// subfield yields nil.
func (f *DataField) Subfield(code string) *string {
	if f == nil {
		return nil
	}
	for _, sf := range f.Subfields {
		if sf.Code == code {
			if sf.Data == "" {
				return nil
			}
			v := sf.Data
			return &v
		}
	}
	return nil
}

func ReadMarcFile(path string) ([]MarcRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMarc(f)
}

// ReadMarc decodes a stream of ISO 2709 records. Any malformed record fails
// the whole stream.
func ReadMarc(r io.Reader) ([]MarcRecord, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	out := []MarcRecord{}
	pos := 0
	for {
		for pos < len(blob) && (blob[pos] == '\n' || blob[pos] == '\r' || blob[pos] == ' ') {
			pos++
		}
		if pos >= len(blob) {
			break
		}
		if len(blob)-pos < leaderLength {
			return nil, fmt.Errorf("%w: truncated leader at offset %d", ErrMalformedRecord, pos)
		}
		length, err := strconv.Atoi(string(blob[pos : pos+5]))
		if err != nil || length < leaderLength+1 {
			return nil, fmt.Errorf("%w: bad record length at offset %d", ErrMalformedRecord, pos)
		}
		if pos+length > len(blob) {
			return nil, fmt.Errorf("%w: record at offset %d exceeds input", ErrMalformedRecord, pos)
		}
		rec, err := parseMarcRecord(blob[pos : pos+length])
		if err != nil {
			return nil, fmt.Errorf("record at offset %d: %w", pos, err)
		}
		out = append(out, rec)
		pos += length
	}
	return out, nil
}

func parseMarcRecord(b []byte) (MarcRecord, error) {
	if b[len(b)-1] != recordTerminator {
		return MarcRecord{}, fmt.Errorf("%w: missing record terminator", ErrMalformedRecord)
	}
	leader := b[:leaderLength]
	base, err := strconv.Atoi(string(leader[12:17]))
	if err != nil || base <= leaderLength || base > len(b) {
		return MarcRecord{}, fmt.Errorf("%w: bad base address", ErrMalformedRecord)
	}

	dir := bytes.TrimSuffix(b[leaderLength:base], []byte{fieldTerminator})
	if len(dir)%directoryEntrySize != 0 {
		return MarcRecord{}, fmt.Errorf("%w: directory length %d", ErrMalformedRecord, len(dir))
	}

	rec := MarcRecord{Leader: string(leader)}
	for i := 0; i < len(dir); i += directoryEntrySize {
		entry := dir[i : i+directoryEntrySize]
		tag := string(entry[0:3])
		flen, err1 := strconv.Atoi(string(entry[3:7]))
		start, err2 := strconv.Atoi(string(entry[7:12]))
		if err1 != nil || err2 != nil {
			return MarcRecord{}, fmt.Errorf("%w: bad directory entry for %s", ErrMalformedRecord, tag)
		}
		if flen < 0 || start < 0 {
			return MarcRecord{}, fmt.Errorf("%w: field %s out of range", ErrMalformedRecord, tag)
		}
		from, to := base+start, base+start+flen
		if from > len(b) || to > len(b) {
			return MarcRecord{}, fmt.Errorf("%w: field %s out of range", ErrMalformedRecord, tag)
		}
		data := bytes.TrimSuffix(b[from:to], []byte{fieldTerminator})

		if isControlTag(tag) {
			rec.ControlFields = append(rec.ControlFields, ControlField{Tag: tag, Data: string(data)})
			continue
		}
		rec.DataFields = append(rec.DataFields, parseDataField(tag, data))
	}
	return rec, nil
}

// LooksLikeMarcLeader checks the fixed positions of an ISO 2709 leader:
// numeric record length and base address, indicator/subfield counts of 2
// and the "4500" entry map.
func LooksLikeMarcLeader(head []byte) bool {
	if len(head) < leaderLength {
		return false
	}
	for _, i := range []int{0, 1, 2, 3, 4, 12, 13, 14, 15, 16} {
		if head[i] < '0' || head[i] > '9' {
			return false
		}
	}
	return head[10] == '2' && head[11] == '2' && string(head[20:24]) == "4500"
}

func parseDataField(tag string, data []byte) DataField {
	field := DataField{Tag: tag, Ind1: " ", Ind2: " "}
	chunks := bytes.Split(data, []byte{subfieldDelimiter})
	if head := chunks[0]; len(head) >= 2 {
		field.Ind1 = string(head[0])
		field.Ind2 = string(head[1])
	}
	for _, chunk := range chunks[1:] {
		if len(chunk) == 0 {
			continue
		}
		field.Subfields = append(field.Subfields, Subfield{Code: string(chunk[0]), Data: string(chunk[1:])})
	}
	return field
}

func isControlTag(tag string) bool {
	return len(tag) == 3 && tag[0] == '0' && tag[1] == '0'
}

// EncodeMarc writes rec in ISO 2709 form. Used to build fixtures and to
// round-trip records.
func EncodeMarc(rec MarcRecord) []byte {
	var dir, body bytes.Buffer
	addField := func(tag string, data []byte) {
		data = append(data, fieldTerminator)
		fmt.Fprintf(&dir, "%s%04d%05d", tag, len(data), body.Len())
		body.Write(data)
	}
	for _, cf := range rec.ControlFields {
		addField(cf.Tag, []byte(cf.Data))
	}
	for _, df := range rec.DataFields {
		var buf bytes.Buffer
		buf.WriteString(firstByte(df.Ind1))
		buf.WriteString(firstByte(df.Ind2))
		for _, sf := range df.Subfields {
			buf.WriteByte(subfieldDelimiter)
			buf.WriteString(sf.Code)
			buf.WriteString(sf.Data)
		}
		addField(df.Tag, buf.Bytes())
	}
	dir.WriteByte(fieldTerminator)

	base := leaderLength + dir.Len()
	total := base + body.Len() + 1

	leader := []byte(rec.Leader)
	if len(leader) != leaderLength {
		leader = []byte("00000nam a2200000   4500")
	}
	copy(leader[0:5], fmt.Sprintf("%05d", total))
	copy(leader[12:17], fmt.Sprintf("%05d", base))

	out := make([]byte, 0, total)
	out = append(out, leader...)
	out = append(out, dir.Bytes()...)
	out = append(out, body.Bytes()...)
	return append(out, recordTerminator)
}

func firstByte(s string) string {
	if s == "" {
		return " "
	}
	return s[:1]
}
