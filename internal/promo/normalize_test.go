package promo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"pending":    StatusPending,
		"Pendente":   StatusPending,
		" PENDING ":  StatusPending,
		"em análise": StatusPending,
		"approved":   StatusApproved,
		"Aprovado":   StatusApproved,
		"aprovada":   StatusApproved,
		"rejected":   StatusRejected,
		"REPROVADO":  StatusRejected,
		"reprovada":  StatusRejected,
		"recusado":   StatusRejected,
		"":           StatusPending,
		"archived":   StatusPending,
		"1":          StatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), "input %q", in)
	}
	assert.Equal(t, StatusApproved, NormalizeStatus(StatusApproved))
	assert.Equal(t, StatusPending, NormalizeStatus(nil))
	assert.Equal(t, StatusPending, NormalizeStatus(42))
}

func TestNormalizePrice(t *testing.T) {
	assert.Equal(t, 12.9, NormalizePrice("12,90"))
	assert.Equal(t, 12.9, NormalizePrice("12.90"))
	assert.Equal(t, 5.0, NormalizePrice(5))
	assert.Equal(t, 7.5, NormalizePrice(json.Number("7.5")))
	assert.Equal(t, 0.0, NormalizePrice("abc"))
	assert.Equal(t, 0.0, NormalizePrice(nil))
	assert.Equal(t, 0.0, NormalizePrice(-3))
	assert.Equal(t, 0.33, NormalizePrice(0.333333))
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2025-03-01", NormalizeDate("2025-03-01"))
	assert.Equal(t, "2025-03-01", NormalizeDate("2025-03-01T23:30:00-03:00"))
	assert.Equal(t, "2025-03-01", NormalizeDate("2025-03-01 10:00:00+00"))
	assert.Equal(t, "2025-03-01", NormalizeDate(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-01", NormalizeDate(float64(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli())))
	assert.Equal(t, "", NormalizeDate("amanhã"))
	assert.Equal(t, "", NormalizeDate(nil))
}

func TestNormalizeCategoryAndDestination(t *testing.T) {
	assert.Equal(t, CategoryPharmacy, NormalizeCategory("farmacia"))
	assert.Equal(t, CategoryElectronics, NormalizeCategory("ELETRÔNICOS"))
	assert.Equal(t, CategorySupermarket, NormalizeCategory("grocery"))
	assert.Equal(t, CategoryOther, NormalizeCategory("brinquedos"))

	assert.Equal(t, DestinationCatalog, NormalizeDestination("catalogo digital"))
	assert.Equal(t, DestinationInternalPage, NormalizeDestination("Internal Page"))
	assert.Equal(t, DestinationWhatsApp, NormalizeDestination(""))
}

func TestNormalizeDestinationURL(t *testing.T) {
	cases := []struct {
		dest Destination
		in   string
		want string
	}{
		{DestinationWhatsApp, "(93) 98134-0104", "https://wa.me/5593981340104"},
		{DestinationWhatsApp, "5593981340104", "https://wa.me/5593981340104"},
		{DestinationWhatsApp, "wa.me/5593981340104?text=oi", "https://wa.me/5593981340104"},
		{DestinationWhatsApp, "https://api.whatsapp.com/send?phone=5593981340104", "https://wa.me/5593981340104"},
		{DestinationWhatsApp, "  ", ""},
		{DestinationWhatsApp, "sem número", ""},
		{DestinationExternalSite, "  https://loja.example.com  ", "https://loja.example.com"},
		{DestinationInternalPage, " /ofertas ", "/ofertas"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDestinationURL(tc.dest, tc.in), "%s %q", tc.dest, tc.in)
	}
	canonical := NormalizeDestinationURL(DestinationWhatsApp, "93981340104")
	assert.Equal(t, canonical, NormalizeDestinationURL(DestinationWhatsApp, canonical))
}

func TestNormalizeImageURLClearsDataURI(t *testing.T) {
	assert.Equal(t, "", NormalizeImageURL("data:image/png;base64,iVBORw0KGgo="))
	assert.Equal(t, "https://cdn.example.com/a.png", NormalizeImageURL(" https://cdn.example.com/a.png "))
}

func TestNewIDIsUniqueAndNonEmpty(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
