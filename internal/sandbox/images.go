package sandbox

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed images.yaml
var imagesYAML []byte

// ImageSpec is one runtime entry in the catalog.
type ImageSpec struct {
	Ref  string `yaml:"ref"`
	Port int    `yaml:"port"`
}

// Catalog maps runtime names (and their aliases) to provider images.
// Unknown runtimes resolve to the default image rather than failing, so a
// misspelled runtime still yields a usable workspace.
type Catalog struct {
	Default string               `yaml:"default"`
	Images  map[string]ImageSpec `yaml:"images"`
	Aliases map[string]string    `yaml:"aliases"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// DefaultCatalog parses the embedded runtime catalog. The parsed catalog is
// cached for the life of the process.
func DefaultCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		var c Catalog
		if err := yaml.Unmarshal(imagesYAML, &c); err != nil {
			catalogErr = fmt.Errorf("parse image catalog: %w", err)
			return
		}
		catalog = &c
	})
	return catalog, catalogErr
}

// Normalize resolves a requested runtime name to its canonical catalog key.
// Names are case-insensitive, aliases are followed, and anything unknown
// falls back to the catalog default.
func (c *Catalog) Normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return c.Default
	}
	if alias, ok := c.Aliases[key]; ok {
		key = alias
	}
	if _, ok := c.Images[key]; ok {
		return key
	}
	return c.Default
}

// ImageFor returns the canonical runtime name and its image spec.
func (c *Catalog) ImageFor(name string) (string, ImageSpec) {
	key := c.Normalize(name)
	return key, c.Images[key]
}

// DefaultPort returns the conventional dev-server port for a runtime.
func (c *Catalog) DefaultPort(name string) int {
	_, spec := c.ImageFor(name)
	return spec.Port
}

// Runtimes lists the canonical runtime names in sorted order.
func (c *Catalog) Runtimes() []string {
	names := make([]string, 0, len(c.Images))
	for name := range c.Images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
