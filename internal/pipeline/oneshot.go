package pipeline

import (
	"fmt"

	"bibmerge/internal"
	"bibmerge/internal/decode"
	"bibmerge/internal/logger"
)

type TabularInput struct {
	Primary       []internal.FieldMap
	Supplementary []internal.FieldMap
}

type CatalogInput struct {
	Records []decode.MarcRecord
	Files   int
	Skipped []string
}

type TradeInput struct {
	SourceA   string
	ProductsA []*decode.Node
	SourceB   string
	ProductsB []*decode.Node
}

func LoadTabular(primaryPath, supplementaryPath string) (TabularInput, error) {
	primary, err := decode.ReadTabularFile(primaryPath)
	if err != nil {
		return TabularInput{}, fmt.Errorf("primary export %s: %w", primaryPath, err)
	}
	supplementary, err := decode.ReadTabularFile(supplementaryPath)
	if err != nil {
		return TabularInput{}, fmt.Errorf("supplementary export %s: %w", supplementaryPath, err)
	}
	return TabularInput{Primary: primary, Supplementary: supplementary}, nil
}

// LoadCatalog decodes every .mrc file under dir. A file that fails to
// decode is skipped and reported; the remaining files still load.
func LoadCatalog(dir string, log *logger.Logger) (CatalogInput, error) {
	files, err := decode.FindFiles(dir, ".mrc")
	if err != nil {
		return CatalogInput{}, fmt.Errorf("scan catalog dir %s: %w", dir, err)
	}

	in := CatalogInput{Files: len(files)}
	for _, path := range files {
		records, err := decode.ReadMarcFile(path)
		if err != nil {
			log.Warn("skipping catalog file", "file", path, "error", err)
			in.Skipped = append(in.Skipped, path)
			continue
		}
		log.Debug("decoded catalog file", "file", path, "records", len(records))
		in.Records = append(in.Records, records...)
	}
	return in, nil
}

func LoadTrade(pathA, sourceA, pathB, sourceB string) (TradeInput, error) {
	rootA, err := decode.ReadXMLFile(pathA)
	if err != nil {
		return TradeInput{}, fmt.Errorf("feed %s (%s): %w", sourceA, pathA, err)
	}
	rootB, err := decode.ReadXMLFile(pathB)
	if err != nil {
		return TradeInput{}, fmt.Errorf("feed %s (%s): %w", sourceB, pathB, err)
	}
	return TradeInput{
		SourceA:   sourceA,
		ProductsA: decode.Products(rootA),
		SourceB:   sourceB,
		ProductsB: decode.Products(rootB),
	}, nil
}
