package payment

import "podium/internal/config"

// Package is one purchasable credit bundle from the read-only catalog.
// TotalCredits is what gets credited on a verified purchase.
type Package struct {
	Slug         string
	Name         string
	BaseCredits  int
	BonusCredits int
	PriceMinor   int64
	Currency     string
}

func (p Package) TotalCredits() int { return p.BaseCredits + p.BonusCredits }

// Catalog holds the configured packages in display order.
type Catalog struct {
	packages []Package
}

func NewCatalog(cfgs []config.PackageConfig) *Catalog {
	pkgs := make([]Package, 0, len(cfgs))
	for _, c := range cfgs {
		currency := c.Currency
		if currency == "" {
			currency = "NGN"
		}
		pkgs = append(pkgs, Package{
			Slug:         c.Slug,
			Name:         c.Name,
			BaseCredits:  c.BaseCredits,
			BonusCredits: c.BonusCredits,
			PriceMinor:   c.PriceMinor,
			Currency:     currency,
		})
	}
	return &Catalog{packages: pkgs}
}

func (c *Catalog) All() []Package { return c.packages }

func (c *Catalog) BySlug(slug string) (Package, bool) {
	for _, p := range c.packages {
		if p.Slug == slug {
			return p, true
		}
	}
	return Package{}, false
}
