package promo

import (
	"context"
	"sort"
	"strings"
	"time"
)

// CatalogFilter narrows the storefront catalogue.
type CatalogFilter struct {
	// Category is matched accent-insensitively; empty or "Todos" keeps all.
	Category string
	// Term must occur in the title, description or store name. Every
	// whitespace-separated word has to match.
	Term string
	// MaxPrice drops offers above it when positive.
	MaxPrice float64
}

// Storefront is the public home page: flash offers, featured offers and the
// filtered catalogue of approved promotions.
type Storefront struct {
	Flash    []Promotion `json:"flash"`
	Featured []Promotion `json:"featured"`
	Catalog  []Promotion `json:"catalog"`
}

// BuildStorefront loads approved promotions and splits them into sections.
func (r *Repository) BuildStorefront(ctx context.Context, filter CatalogFilter) Storefront {
	return NewStorefront(r.ListAll(ctx, true), filter, r.now())
}

// NewStorefront splits approved promotions into storefront sections. Flash
// offers are ordered by soonest expiry.
func NewStorefront(approved []Promotion, filter CatalogFilter, now time.Time) Storefront {
	sf := Storefront{
		Flash:    []Promotion{},
		Featured: []Promotion{},
		Catalog:  []Promotion{},
	}
	for _, p := range approved {
		if p.IsFlashActive(now) {
			sf.Flash = append(sf.Flash, p)
		}
		if p.IsFeatured {
			sf.Featured = append(sf.Featured, p)
		}
	}
	sort.SliceStable(sf.Flash, func(i, j int) bool {
		return sf.Flash[i].FlashUntil.Before(*sf.Flash[j].FlashUntil)
	})
	sf.Catalog = FilterCatalog(approved, filter)
	return sf
}

// FilterCatalog keeps the promotions matching filter, preserving order.
func FilterCatalog(list []Promotion, filter CatalogFilter) []Promotion {
	var category Category
	switch Fold(filter.Category) {
	case "", "todos", "all":
	default:
		category = NormalizeCategory(filter.Category)
	}
	tokens := strings.Fields(Fold(filter.Term))

	out := []Promotion{}
	for _, p := range list {
		if category != "" && NormalizeCategory(string(p.Category)) != category {
			continue
		}
		if filter.MaxPrice > 0 && p.CurrentPrice > filter.MaxPrice {
			continue
		}
		if !matchesTerm(p, tokens) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesTerm(p Promotion, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	haystack := Fold(p.Title + " " + p.Description + " " + p.StoreName)
	for _, tok := range tokens {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}
