package promo

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"pechincha/internal/backend"
)

// Table is the backend table holding promotions.
const Table = "promotions"

// Column names of the promotions table.
const (
	colID              = "id"
	colPartnerID       = "partner_id"
	colTitle           = "title"
	colDescription     = "description"
	colStoreName       = "store_name"
	colCategory        = "category"
	colImageURL        = "image_url"
	colCurrentPrice    = "current_price"
	colOldPrice        = "old_price"
	colStatus          = "status"
	colExpiryDate      = "expiry_date"
	colIsFeatured      = "is_featured"
	colIsFlash         = "is_flash"
	colFlashUntil      = "flash_until"
	colDestinationType = "destination_type"
	colDestinationURL  = "destination_url"
	colCreatedAt       = "created_at"
	colIsSponsored     = "is_sponsored"
	colSponsorLabel    = "sponsor_label"
)

// legacyIDSpace derives stable ids for historical rows stored without one.
var legacyIDSpace = uuid.MustParse("6f1c6a52-6d0e-4c55-9a4b-5f0e7c7d2a10")

// ToRow renders p in the backend's column layout.
func ToRow(p Promotion) backend.Row {
	row := backend.Row{
		colID:              p.ID,
		colPartnerID:       p.PartnerID,
		colTitle:           p.Title,
		colDescription:     p.Description,
		colStoreName:       p.StoreName,
		colCategory:        string(p.Category),
		colImageURL:        p.ImageURL,
		colCurrentPrice:    p.CurrentPrice,
		colOldPrice:        p.OldPrice,
		colStatus:          string(p.Status),
		colExpiryDate:      nil,
		colIsFeatured:      p.IsFeatured,
		colIsFlash:         p.IsFlash,
		colFlashUntil:      nil,
		colDestinationType: string(p.DestinationType),
		colDestinationURL:  p.DestinationURL,
		colCreatedAt:       nil,
		colIsSponsored:     p.IsSponsored,
		colSponsorLabel:    p.SponsorLabel,
	}
	if p.ExpiryDate != "" {
		row[colExpiryDate] = p.ExpiryDate
	}
	if p.FlashUntil != nil {
		row[colFlashUntil] = p.FlashUntil.UTC().Format(time.RFC3339Nano)
	}
	if !p.CreatedAt.IsZero() {
		row[colCreatedAt] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return row
}

// FromRow normalizes a backend row into a Promotion. It accepts the current
// snake_case layout as well as camelCase keys written by earlier releases.
func FromRow(r backend.Row) Promotion {
	p := Promotion{
		ID:           r.String(colID),
		PartnerID:    r.String(colPartnerID, "partnerId"),
		Title:        r.String(colTitle),
		Description:  r.String(colDescription),
		StoreName:    r.String(colStoreName, "storeName"),
		ImageURL:     NormalizeImageURL(r.String(colImageURL, "imageUrl")),
		IsFeatured:   r.Bool(colIsFeatured, "isFeatured"),
		IsFlash:      r.Bool(colIsFlash, "isFlash"),
		IsSponsored:  r.Bool(colIsSponsored, "isSponsored"),
		SponsorLabel: r.String(colSponsorLabel, "sponsorLabel"),
	}
	p.Category = NormalizeCategory(r.String(colCategory))
	p.Status = NormalizeStatus(r.String(colStatus))

	if v, ok := r.Raw(colCurrentPrice, "currentPrice"); ok {
		p.CurrentPrice = NormalizePrice(v)
	}
	if v, ok := r.Raw(colOldPrice, "oldPrice"); ok {
		p.OldPrice = NormalizePrice(v)
	}
	if v, ok := r.Raw(colExpiryDate, "expiryDate"); ok {
		p.ExpiryDate = NormalizeDate(v)
	}
	if v, ok := r.Raw(colFlashUntil, "flashUntil"); ok {
		p.FlashUntil = NormalizeTimestamp(v)
	}
	if v, ok := r.Raw(colCreatedAt, "createdAt"); ok {
		if t := NormalizeTimestamp(v); t != nil {
			p.CreatedAt = *t
		}
	}
	p.DestinationType = NormalizeDestination(r.String(colDestinationType, "destinationType"))
	p.DestinationURL = NormalizeDestinationURL(p.DestinationType, r.String(colDestinationURL, "destinationUrl"))

	if p.ID == "" {
		fingerprint := strings.Join([]string{p.PartnerID, p.StoreName, p.Title, p.CreatedAt.Format(time.RFC3339Nano)}, "|")
		p.ID = uuid.NewSHA1(legacyIDSpace, []byte(fingerprint)).String()
	}
	return p
}
