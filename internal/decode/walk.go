package decode

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FindFiles lists regular files under root whose extension is one of exts
// (case-insensitive), in lexical walk order.
func FindFiles(root string, exts ...string) ([]string, error) {
	out := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range exts {
			if ext == strings.ToLower(want) {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	return out, err
}
