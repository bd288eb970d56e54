package mutations

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog format:
//
//	mutations:
//	  - name: tab-prefix
//	    template: "\t{name}: {value}"
//
// Control bytes are written with YAML double-quoted escapes.
type File struct {
	Mutations []FileEntry `yaml:"mutations"`
}

type FileEntry struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

// Parse builds a catalog from YAML data.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mutation catalog: %w", err)
	}
	if len(f.Mutations) == 0 {
		return nil, fmt.Errorf("mutation catalog is empty")
	}

	c := New()
	for i, m := range f.Mutations {
		if err := c.AddTemplate(m.Name, m.Template); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return c, nil
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mutation catalog: %w", err)
	}
	return Parse(data)
}
