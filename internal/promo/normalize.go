package promo

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pechincha/internal/backend"
)

// Fold lowercases s, trims it and strips diacritics so "Farmácia" and
// "farmacia" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

var statusSynonyms = map[string]Status{
	"pending":    StatusPending,
	"pendente":   StatusPending,
	"em analise": StatusPending,
	"aguardando": StatusPending,
	"approved":   StatusApproved,
	"aprovado":   StatusApproved,
	"aprovada":   StatusApproved,
	"rejected":   StatusRejected,
	"reprovado":  StatusRejected,
	"reprovada":  StatusRejected,
	"rejeitado":  StatusRejected,
	"rejeitada":  StatusRejected,
	"recusado":   StatusRejected,
	"recusada":   StatusRejected,
}

// NormalizeStatus maps any spelling of a status onto the closed set.
// Unrecognized input is pending.
func NormalizeStatus(raw any) Status {
	if st, ok := statusSynonyms[Fold(backend.AsString(raw))]; ok {
		return st
	}
	return StatusPending
}

// NormalizePrice coerces numbers and numeric strings; anything unparseable,
// negative or non-finite is 0.
func NormalizePrice(raw any) float64 {
	f, ok := backend.AsFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return math.Round(f*100) / 100
}

const dateLayout = "2006-01-02"

// NormalizeDate renders a date, timestamp string, time.Time or epoch value
// as YYYY-MM-DD. Timestamps keep the calendar day of their own offset.
// Unparseable input yields "".
func NormalizeDate(raw any) string {
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if len(s) >= len(dateLayout) {
			if _, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
				return s[:len(dateLayout)]
			}
		}
	}
	t, ok := backend.ParseTime(raw)
	if !ok {
		return ""
	}
	return t.Format(dateLayout)
}

// NormalizeTimestamp converts a timestamp-like value to UTC, or nil.
func NormalizeTimestamp(raw any) *time.Time {
	t, ok := backend.ParseTime(raw)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

var categorySynonyms = map[string]Category{
	"supermarket": CategorySupermarket,
	"grocery":     CategorySupermarket,
	"mercado":     CategorySupermarket,
	"restaurant":  CategoryRestaurant,
	"food":        CategoryRestaurant,
	"comida":      CategoryRestaurant,
	"pharmacy":    CategoryPharmacy,
	"drugstore":   CategoryPharmacy,
	"electronics": CategoryElectronics,
	"fashion":     CategoryFashion,
	"roupas":      CategoryFashion,
	"other":       CategoryOther,
}

// NormalizeCategory maps input onto a fixed category, defaulting to Outros.
func NormalizeCategory(raw any) Category {
	key := Fold(backend.AsString(raw))
	for _, c := range Categories {
		if Fold(string(c)) == key {
			return c
		}
	}
	if c, ok := categorySynonyms[key]; ok {
		return c
	}
	return CategoryOther
}

var destinationSynonyms = map[string]Destination{
	"whatsapp":         DestinationWhatsApp,
	"wa":               DestinationWhatsApp,
	"zap":              DestinationWhatsApp,
	"site externo":     DestinationExternalSite,
	"external site":    DestinationExternalSite,
	"site":             DestinationExternalSite,
	"external":         DestinationExternalSite,
	"loja online":      DestinationOnlineStore,
	"online store":     DestinationOnlineStore,
	"ecommerce":        DestinationOnlineStore,
	"catalogo digital": DestinationCatalog,
	"digital catalog":  DestinationCatalog,
	"catalogo":         DestinationCatalog,
	"catalog":          DestinationCatalog,
	"pagina interna":   DestinationInternalPage,
	"internal page":    DestinationInternalPage,
	"internal":         DestinationInternalPage,
}

// NormalizeDestination maps input onto a destination type, defaulting to WhatsApp.
func NormalizeDestination(raw any) Destination {
	if d, ok := destinationSynonyms[Fold(backend.AsString(raw))]; ok {
		return d
	}
	return DestinationWhatsApp
}

// OnlyDigits strips everything but ASCII digits.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WhatsAppNumber canonicalizes a phone number: local Brazilian numbers
// (area code + subscriber, 10 or 11 digits) get the 55 country code.
func WhatsAppNumber(raw string) string {
	digits := OnlyDigits(raw)
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits
	}
	return digits
}

// NormalizeDestinationURL canonicalizes the destination value for its type.
// WhatsApp values (raw digits, wa.me or api.whatsapp.com links) become
// https://wa.me/<digits>; other types are trimmed.
func NormalizeDestinationURL(dest Destination, raw string) string {
	raw = strings.TrimSpace(raw)
	if dest != DestinationWhatsApp || raw == "" {
		return raw
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "wa.me/"):
		rest := raw[strings.Index(lower, "wa.me/")+len("wa.me/"):]
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			rest = rest[:i]
		}
		if digits := WhatsAppNumber(rest); digits != "" {
			return "https://wa.me/" + digits
		}
		return raw
	case strings.Contains(lower, "whatsapp.com"):
		target := raw
		if !strings.Contains(lower, "://") {
			target = "https://" + raw
		}
		if u, err := url.Parse(target); err == nil {
			if digits := WhatsAppNumber(u.Query().Get("phone")); digits != "" {
				return "https://wa.me/" + digits
			}
		}
		return raw
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return raw
	}
	digits := WhatsAppNumber(raw)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits
}

// NormalizeImageURL drops inline data URIs; images must go through the
// storage upload path and be referenced by URL.
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return ""
	}
	return raw
}

// NewID generates a promotion id.
func NewID() string {
	return uuid.NewString()
}
