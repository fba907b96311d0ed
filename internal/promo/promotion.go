// Package promo owns the promotion record: its normalization at the backend
// boundary, the repository operations and the storefront views built on them.
package promo

import (
	"errors"
	"time"
)

// ErrInvalid marks a rejected write (missing required field, malformed id).
var ErrInvalid = errors.New("invalid promotion")

// Status is the moderation state of a promotion.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Category is one of the fixed merchandise categories.
type Category string

const (
	CategorySupermarket Category = "Supermercado"
	CategoryRestaurant  Category = "Restaurante"
	CategoryPharmacy    Category = "Farmácia"
	CategoryElectronics Category = "Eletrônicos"
	CategoryFashion     Category = "Moda"
	CategoryOther       Category = "Outros"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategorySupermarket,
	CategoryRestaurant,
	CategoryPharmacy,
	CategoryElectronics,
	CategoryFashion,
	CategoryOther,
}

// Destination says where a click on the promotion leads.
type Destination string

const (
	DestinationWhatsApp     Destination = "WhatsApp"
	DestinationExternalSite Destination = "Site Externo"
	DestinationOnlineStore  Destination = "Loja Online"
	DestinationCatalog      Destination = "Catálogo Digital"
	DestinationInternalPage Destination = "Página Interna"
)

// Promotion is one merchant offer in its normalized form.
type Promotion struct {
	ID              string      `json:"id"`
	PartnerID       string      `json:"partnerId"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	StoreName       string      `json:"storeName"`
	Category        Category    `json:"category"`
	ImageURL        string      `json:"imageUrl"`
	CurrentPrice    float64     `json:"currentPrice"`
	OldPrice        float64     `json:"oldPrice"`
	Status          Status      `json:"status"`
	ExpiryDate      string      `json:"expiryDate"`
	IsFeatured      bool        `json:"isFeatured"`
	IsFlash         bool        `json:"isFlash"`
	FlashUntil      *time.Time  `json:"flashUntil,omitempty"`
	DestinationType Destination `json:"destinationType"`
	DestinationURL  string      `json:"destinationUrl"`
	CreatedAt       time.Time   `json:"createdAt"`
	IsSponsored     bool        `json:"isSponsored"`
	SponsorLabel    string      `json:"sponsorLabel,omitempty"`
}

// IsFlashActive reports whether the flash flag is on and has not expired at now.
func (p Promotion) IsFlashActive(now time.Time) bool {
	return p.IsFlash && p.FlashUntil != nil && p.FlashUntil.After(now)
}

// HasMarkdown reports whether an old price should be shown struck through.
func (p Promotion) HasMarkdown() bool {
	return p.OldPrice > 0
}

// Patch is a partial promotion: nil fields are left untouched on save.
// FlashUntil uses a double pointer so a patch can clear it explicitly.
type Patch struct {
	PartnerID       *string     `json:"partnerId,omitempty"`
	Title           *string     `json:"title,omitempty"`
	Description     *string     `json:"description,omitempty"`
	StoreName       *string     `json:"storeName,omitempty"`
	Category        *string     `json:"category,omitempty"`
	ImageURL        *string     `json:"imageUrl,omitempty"`
	CurrentPrice    *float64    `json:"currentPrice,omitempty"`
	OldPrice        *float64    `json:"oldPrice,omitempty"`
	Status          *string     `json:"status,omitempty"`
	ExpiryDate      *string     `json:"expiryDate,omitempty"`
	IsFeatured      *bool       `json:"isFeatured,omitempty"`
	IsFlash         *bool       `json:"isFlash,omitempty"`
	FlashUntil      **time.Time `json:"-"`
	DestinationType *string     `json:"destinationType,omitempty"`
	DestinationURL  *string     `json:"destinationUrl,omitempty"`
	IsSponsored     *bool       `json:"isSponsored,omitempty"`
	SponsorLabel    *string     `json:"sponsorLabel,omitempty"`
}

// flagsOnly reports whether the patch touches nothing but status and
// promotion flags.
func (p Patch) flagsOnly() bool {
	return p.PartnerID == nil && p.Title == nil && p.Description == nil &&
		p.StoreName == nil && p.Category == nil && p.ImageURL == nil &&
		p.CurrentPrice == nil && p.OldPrice == nil && p.ExpiryDate == nil &&
		p.DestinationType == nil && p.DestinationURL == nil
}

// Actor is the caller of a write.
type Actor struct {
	PartnerID   string
	PartnerName string
	// Privileged callers (admins) may set status and promotion flags.
	Privileged bool
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// ClearFlashUntil returns the FlashUntil patch value that removes the timestamp.
func ClearFlashUntil() **time.Time {
	var none *time.Time
	return &none
}

// SetFlashUntil returns the FlashUntil patch value for t.
func SetFlashUntil(t time.Time) **time.Time {
	t = t.UTC()
	tp := &t
	return &tp
}
