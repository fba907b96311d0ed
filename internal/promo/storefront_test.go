package promo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorefrontSections(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)
	later := now.Add(5 * time.Hour)
	expired := now.Add(-time.Hour)

	list := []Promotion{
		{ID: "late", Title: "Tênis", StoreName: "Moda Já", Category: CategoryFashion, CurrentPrice: 199, IsFlash: true, FlashUntil: &later},
		{ID: "soon", Title: "Dipirona", StoreName: "Farmácia Boa", Category: CategoryPharmacy, CurrentPrice: 8, IsFlash: true, FlashUntil: &soon},
		{ID: "old", Title: "Fone", Category: CategoryElectronics, CurrentPrice: 50, IsFlash: true, FlashUntil: &expired, IsFeatured: true},
		{ID: "plain", Title: "Feijão carioca", Description: "Pacote 1kg", Category: CategorySupermarket, CurrentPrice: 9},
	}

	sf := NewStorefront(list, CatalogFilter{}, now)
	require.Len(t, sf.Flash, 2)
	assert.Equal(t, "soon", sf.Flash[0].ID)
	assert.Equal(t, "late", sf.Flash[1].ID)
	require.Len(t, sf.Featured, 1)
	assert.Equal(t, "old", sf.Featured[0].ID)
	assert.Len(t, sf.Catalog, 4)
}

func TestFilterCatalog(t *testing.T) {
	list := []Promotion{
		{ID: "1", Title: "Dipirona", StoreName: "Farmácia Boa", Category: CategoryPharmacy, CurrentPrice: 8},
		{ID: "2", Title: "Feijão carioca", Description: "Pacote 1kg", Category: CategorySupermarket, CurrentPrice: 9},
		{ID: "3", Title: "Feijão preto", Category: CategorySupermarket, CurrentPrice: 12},
	}

	ids := func(ps []Promotion) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1"}, ids(FilterCatalog(list, CatalogFilter{Category: "farmacia"})))
	assert.Equal(t, []string{"2", "3"}, ids(FilterCatalog(list, CatalogFilter{Term: "FEIJAO"})))
	assert.Equal(t, []string{"2"}, ids(FilterCatalog(list, CatalogFilter{Term: "feijão pacote"})))
	assert.Equal(t, []string{"2"}, ids(FilterCatalog(list, CatalogFilter{Term: "feijao", MaxPrice: 10})))
	assert.Equal(t, []string{"1", "2", "3"}, ids(FilterCatalog(list, CatalogFilter{Category: "Todos"})))
	assert.Equal(t, []string{"2", "3"}, ids(FilterCatalog(list, CatalogFilter{Category: "grocery"})))
	assert.Equal(t, []string{"2", "3"}, ids(FilterCatalog(list, CatalogFilter{Category: " MERCADO "})))
	assert.Equal(t, []string{"1", "2", "3"}, ids(FilterCatalog(list, CatalogFilter{Category: "all"})))
	assert.Empty(t, FilterCatalog(list, CatalogFilter{Term: "pizza"}))
}
