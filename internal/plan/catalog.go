package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Catalog maps store product identifiers to tiers. The mapping is built at
// configuration time; product ids are matched exactly, never by substring,
// so nested identifiers ("...standard_monthly") cannot be mis-tokenized.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Type
}

type catalogFile struct {
	Products []catalogEntry `json:"products"`
}

type catalogEntry struct {
	ProductID string `json:"product_id"`
	Plan      string `json:"plan"`
}

func NewCatalog() *Catalog {
	return &Catalog{products: make(map[string]Type)}
}

// DefaultCatalog returns the built-in mapping for the shipped subscription
// products.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register("com.kotono_iro.standard_monthly", Standard)
	c.Register("com.kotono_iro.premium_monthly", Premium)
	c.Register("com.kotono_iro.ultimate_monthly", Ultimate)
	return c
}

// LoadCatalog reads a product mapping from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read product catalog: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse product catalog: %w", err)
	}

	c := NewCatalog()
	for _, e := range file.Products {
		p := Type(e.Plan)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown plan %q for product %q", e.Plan, e.ProductID)
		}
		c.Register(e.ProductID, p)
	}
	return c, nil
}

func (c *Catalog) Register(productID string, p Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID] = p
}

// PlanFor resolves a product id to its tier. Unknown products resolve to
// Free with ok=false; callers must fail closed on that.
func (c *Catalog) PlanFor(productID string) (Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return Free, false
	}
	return p, true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}
