package subscription

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// PlanInfo maps a plan to its provider price.
type PlanInfo struct {
	Plan    Plan   `yaml:"plan"`
	Name    string `yaml:"name"`
	PriceID string `yaml:"price_id"`
	// Amount is the list price in minor units; informational only, the
	// provider's charge is authoritative for refunds.
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// Catalog is the set of plans that can be subscribed to.
type Catalog struct {
	plans map[Plan]PlanInfo
}

type catalogFile struct {
	Plans []PlanInfo `yaml:"plans"`
}

// ParseCatalog reads a YAML plan catalog. Paid plans must carry a price id.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	c := &Catalog{plans: make(map[Plan]PlanInfo, len(f.Plans))}
	for _, p := range f.Plans {
		if !p.Plan.Valid() {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidCatalog, p.Plan)
		}
		if p.Plan.IsPaid() && p.PriceID == "" {
			return nil, fmt.Errorf("%w: plan %q has no price_id", ErrInvalidCatalog, p.Plan)
		}
		if _, dup := c.plans[p.Plan]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidCatalog, p.Plan)
		}
		c.plans[p.Plan] = p
	}
	if _, ok := c.plans[PlanFree]; !ok {
		c.plans[PlanFree] = PlanInfo{Plan: PlanFree, Name: "Free"}
	}
	return c, nil
}

// LoadCatalog reads the catalog from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// DefaultCatalog returns the embedded catalog. Its price ids are placeholders
// meant to be overridden per environment.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(bytes.NewReader(defaultCatalog))
}

// Lookup returns the catalog entry for plan.
func (c *Catalog) Lookup(plan Plan) (PlanInfo, error) {
	p, ok := c.plans[plan]
	if !ok {
		return PlanInfo{}, fmt.Errorf("%w: %q", ErrPlanNotInCatalog, plan)
	}
	return p, nil
}

// PlanForPrice resolves a provider price id back to a plan.
func (c *Catalog) PlanForPrice(priceID string) (Plan, bool) {
	for _, p := range c.plans {
		if priceID != "" && p.PriceID == priceID {
			return p.Plan, true
		}
	}
	return "", false
}
