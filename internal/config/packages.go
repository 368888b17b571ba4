package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

// PackageCatalog is the set of credit packages offered at checkout.
type PackageCatalog struct {
	byID map[string]model.CreditPackage
}

type packagesFile struct {
	Packages []model.CreditPackage `yaml:"packages"`
}

// LoadPackages reads the YAML catalog at path.
func LoadPackages(path string) (*PackageCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read packages file: %w", err)
	}
	return ParsePackages(raw)
}

func ParsePackages(raw []byte) (*PackageCatalog, error) {
	var f packagesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse packages file: %w", err)
	}
	return NewPackageCatalog(f.Packages...)
}

func NewPackageCatalog(packages ...model.CreditPackage) (*PackageCatalog, error) {
	c := &PackageCatalog{byID: make(map[string]model.CreditPackage, len(packages))}
	for _, p := range packages {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("package without id")
		case p.Credits <= 0:
			return nil, fmt.Errorf("package %s: credits must be positive", p.ID)
		case p.BonusCredits < 0:
			return nil, fmt.Errorf("package %s: bonus credits must not be negative", p.ID)
		case p.Price <= 0:
			return nil, fmt.Errorf("package %s: price must be positive", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("package %s defined twice", p.ID)
		}
		c.byID[p.ID] = p
	}
	return c, nil
}

func (c *PackageCatalog) Get(id string) (model.CreditPackage, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns the packages ordered by price.
func (c *PackageCatalog) All() []model.CreditPackage {
	out := make([]model.CreditPackage, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
