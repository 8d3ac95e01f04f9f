// Package catalog loads the mobile-money networks from YAML.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

//go:embed networks.yaml
var defaultNetworks []byte

type document struct {
	Networks []domain.MobileNetwork `yaml:"networks"`
}

// Catalog implements domain.NetworkCatalog over an immutable list
type Catalog struct {
	networks []domain.MobileNetwork
	byID     map[int]domain.MobileNetwork
}

// Default returns the catalog compiled into the binary
func Default() (*Catalog, error) {
	return Parse(defaultNetworks)
}

// Load reads a catalog file, or the built-in one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode network catalog: %w", err)
	}
	if len(doc.Networks) == 0 {
		return nil, fmt.Errorf("network catalog is empty")
	}

	c := &Catalog{byID: make(map[int]domain.MobileNetwork, len(doc.Networks))}
	for i := range doc.Networks {
		n := doc.Networks[i]
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("network #%d: %w", i+1, err)
		}
		if _, dup := c.byID[n.ID]; dup {
			return nil, fmt.Errorf("network #%d: duplicate id %d", i+1, n.ID)
		}
		c.byID[n.ID] = n
		c.networks = append(c.networks, n)
	}

	sort.SliceStable(c.networks, func(i, j int) bool {
		if c.networks[i].Country != c.networks[j].Country {
			return c.networks[i].Country < c.networks[j].Country
		}
		return c.networks[i].Name < c.networks[j].Name
	})
	return c, nil
}

// List returns every network sorted by country then name
func (c *Catalog) List() []domain.MobileNetwork {
	out := make([]domain.MobileNetwork, len(c.networks))
	copy(out, c.networks)
	return out
}

// Get retrieves a network by ID
func (c *Catalog) Get(id int) (domain.MobileNetwork, bool) {
	n, ok := c.byID[id]
	return n, ok
}
