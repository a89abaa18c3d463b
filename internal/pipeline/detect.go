package pipeline

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bibmerge/internal"
	"bibmerge/internal/decode"
)

type DetectResult struct {
	Family internal.SourceFamily
	Score  float64
	Reason string
}

var (
	zipMagic     = []byte("PK\x03\x04")
	onixRootHint = [][]byte{[]byte("<ONIXMessage"), []byte("<ONIXmessage")}
	onixBodyHint = [][]byte{[]byte("<Product>"), []byte("<product>"), []byte("<RecordReference>"), []byte("<a001>")}
)

// DetectSourceFamily scores a file name and its first bytes against the
// three input families. Content evidence outweighs the extension.
func DetectSourceFamily(name string, head []byte) DetectResult {
	ext := strings.ToLower(filepath.Ext(name))
	scores := map[internal.SourceFamily]float64{}
	reasons := map[internal.SourceFamily]string{}
	add := func(f internal.SourceFamily, score float64, reason string) {
		scores[f] += score
		if reasons[f] == "" {
			reasons[f] = reason
		}
	}

	switch ext {
	case ".xlsx", ".xlsm", ".csv":
		add(internal.FamilyTabular, 0.4, "extension")
	case ".mrc", ".marc":
		add(internal.FamilyCatalog, 0.4, "extension")
	case ".xml", ".onix":
		add(internal.FamilyTrade, 0.3, "extension")
	}

	if bytes.HasPrefix(head, zipMagic) {
		add(internal.FamilyTabular, 0.5, "zip_container")
	}
	if decode.LooksLikeMarcLeader(head) {
		add(internal.FamilyCatalog, 0.6, "iso2709_leader")
	}
	for _, hint := range onixRootHint {
		if bytes.Contains(head, hint) {
			add(internal.FamilyTrade, 0.6, "onix_root")
			break
		}
	}
	for _, hint := range onixBodyHint {
		if bytes.Contains(head, hint) {
			add(internal.FamilyTrade, 0.2, "onix_product")
			break
		}
	}
	if ext == ".csv" && bytes.Count(head, []byte(",")) >= 2 {
		add(internal.FamilyTabular, 0.3, "csv_delimiters")
	}

	best := DetectResult{Family: internal.FamilyUnknown, Reason: "no_evidence"}
	for _, f := range []internal.SourceFamily{internal.FamilyTabular, internal.FamilyCatalog, internal.FamilyTrade} {
		if scores[f] > best.Score {
			best = DetectResult{Family: f, Score: scores[f], Reason: reasons[f]}
		}
	}
	if best.Score > 1 {
		best.Score = 1
	}
	if best.Score < 0.3 {
		return DetectResult{Family: internal.FamilyUnknown, Score: best.Score, Reason: "below_threshold"}
	}
	return best
}

// DetectFile reads the head of path and runs DetectSourceFamily.
func DetectFile(path string) (DetectResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return DetectResult{}, err
	}
	defer f.Close()

	head := make([]byte, 2048)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return DetectResult{}, err
	}
	return DetectSourceFamily(path, head[:n]), nil
}
