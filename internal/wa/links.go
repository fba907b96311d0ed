package wa

import (
	"fmt"
	"net/url"
	"strings"

	"pechincha/internal/leads"
	"pechincha/internal/promo"
)

// BoostKind is the promotion upgrade a partner asks the admin for.
type BoostKind string

const (
	BoostFeatured BoostKind = "featured"
	BoostFlash    BoostKind = "flash"
)

// ParseBoostKind accepts the English and Portuguese names.
func ParseBoostKind(raw string) (BoostKind, bool) {
	switch promo.Fold(raw) {
	case "featured", "destaque":
		return BoostFeatured, true
	case "flash", "relampago":
		return BoostFlash, true
	}
	return "", false
}

// Link builds a wa.me URL for number with an optional pre-filled text.
func Link(number, text string) string {
	digits := promo.WhatsAppNumber(number)
	if digits == "" {
		return ""
	}
	link := "https://wa.me/" + digits
	if text != "" {
		link += "?text=" + encodeText(text)
	}
	return link
}

// encodeText escapes text for a query value with spaces as %20.
func encodeText(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// SupportLink opens a chat with the support number.
func SupportLink(number, appName string) string {
	return Link(number, fmt.Sprintf("Olá! Vim pelo app %s e preciso de ajuda.", appName))
}

// LeadContactLink opens a chat with a lead's contact number.
func LeadContactLink(l leads.Lead, appName string) string {
	return Link(l.WhatsApp, fmt.Sprintf("Olá, %s! Recebemos seu interesse em anunciar no %s.", l.CompanyName, appName))
}

func priceLines(p promo.Promotion, label string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 %s: R$ %.2f\n", label, p.CurrentPrice)
	if p.HasMarkdown() {
		fmt.Fprintf(&b, "❌ De: R$ %.2f\n", p.OldPrice)
	}
	return b.String()
}

// InquiryMessage is the text a customer sends about a promotion.
func InquiryMessage(p promo.Promotion, appName string) string {
	return fmt.Sprintf("Olá! Vi esta oferta no app %s e quero mais informações 👇\n\n", appName) +
		fmt.Sprintf("🛒 Produto: %s\n🏪 Loja: %s\n", p.Title, p.StoreName) +
		priceLines(p, "Oferta") +
		fmt.Sprintf("\n📲 Enviado pelo app %s ✅", appName)
}

// PromotionContactLink resolves where a promotion's call to action leads.
// WhatsApp destinations get the inquiry text appended; other destinations
// are returned as stored. The result is empty when there is no destination.
func PromotionContactLink(p promo.Promotion, appName string) string {
	raw := strings.TrimSpace(p.DestinationURL)
	if raw == "" {
		return ""
	}
	if p.DestinationType != promo.DestinationWhatsApp {
		return raw
	}
	text := encodeText(InquiryMessage(p, appName))
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + "text=" + text
	}
	digits := promo.OnlyDigits(raw)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits + "?text=" + text
}

// BoostRequestMessage is the text a partner sends to ask for an upgrade.
func BoostRequestMessage(p promo.Promotion, kind BoostKind, appName string) string {
	title, want := "⭐ PEDIDO DE DESTAQUE", "DESTAQUE"
	if kind == BoostFlash {
		title, want = "⚡ PEDIDO DE PROMOÇÃO RELÂMPAGO (24h)", "RELÂMPAGO 24h"
	}
	return title + "\n\n" +
		fmt.Sprintf("🏪 Loja: %s\n🛒 Produto: %s\n", p.StoreName, p.Title) +
		priceLines(p, "Preço") +
		fmt.Sprintf("📌 Categoria: %s\n🆔 ID da promoção: %s\n📍 Origem: App %s\n\n", p.Category, p.ID, appName) +
		fmt.Sprintf("Quero %s nessa promoção.", want)
}

// BoostRequestLink opens a chat with the admin carrying a boost request.
func BoostRequestLink(adminNumber string, p promo.Promotion, kind BoostKind, appName string) string {
	return Link(adminNumber, BoostRequestMessage(p, kind, appName))
}
