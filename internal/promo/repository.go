package promo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"pechincha/internal/backend"
	"pechincha/internal/metrics"
)

// ErrNotFound is returned by writes addressing a promotion that does not
// exist or that the caller may not modify.
var ErrNotFound = errors.New("promotion not found")

// DefaultFlashWindow is how long a flash promotion stays active.
const DefaultFlashWindow = 24 * time.Hour

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FavoritesPurger removes a promotion id from every favorites set.
type FavoritesPurger interface {
	Purge(ctx context.Context, id string) error
}

// Repository is the only component speaking the tabular protocol for promotions.
type Repository struct {
	tables    backend.Tables
	favorites FavoritesPurger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewRepository builds a repository over tables. favorites may be nil.
func NewRepository(tables backend.Tables, favorites FavoritesPurger, logger *slog.Logger, m *metrics.Metrics) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		tables:    tables,
		favorites: favorites,
		logger:    logger.With("component", "promo_repository"),
		metrics:   m,
		now:       time.Now,
	}
}

func (r *Repository) degrade(op string, err error) {
	r.logger.Warn("promotion read degraded to empty result", "operation", op, "error", err)
	r.metrics.IncDegraded(op)
}

// ListAll returns every promotion visible to the caller, approved ones only
// when onlyApproved is set. Backend failures yield an empty list.
func (r *Repository) ListAll(ctx context.Context, onlyApproved bool) []Promotion {
	rows, err := r.tables.Select(ctx, backend.Query{
		Table: Table,
		Order: []backend.Order{{Column: colCreatedAt, Desc: true}},
	})
	if err != nil {
		r.degrade("list_all", err)
		return []Promotion{}
	}
	list := r.normalizeRows(rows)
	if onlyApproved {
		approved := list[:0]
		for _, p := range list {
			if p.Status == StatusApproved {
				approved = append(approved, p)
			}
		}
		list = approved
	}
	SortPromotions(list, r.now())
	return list
}

// GetByID returns the promotion with id, or false when it is absent or the
// backend is unreachable.
func (r *Repository) GetByID(ctx context.Context, id string) (Promotion, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Promotion{}, false
	}
	p, found, err := r.fetch(ctx, id)
	if err != nil {
		r.degrade("get_by_id", err)
		return Promotion{}, false
	}
	return p, found
}

// ListByPartner returns promotions owned by partnerID, compared trimmed and
// case-insensitively.
func (r *Repository) ListByPartner(ctx context.Context, partnerID string) []Promotion {
	key := strings.TrimSpace(partnerID)
	if key == "" {
		return []Promotion{}
	}
	rows, err := r.tables.Select(ctx, backend.Query{
		Table:   Table,
		Filters: []backend.Filter{backend.EqFold(colPartnerID, key)},
		Order:   []backend.Order{{Column: colCreatedAt, Desc: true}},
	})
	if err != nil {
		r.degrade("list_by_partner", err)
		return []Promotion{}
	}
	out := []Promotion{}
	for _, p := range r.normalizeRows(rows) {
		if strings.EqualFold(strings.TrimSpace(p.PartnerID), key) {
			out = append(out, p)
		}
	}
	SortPromotions(out, r.now())
	return out
}

// Save creates or patches a promotion. With an id matching an existing
// record, the fields set in patch are merged over it and everything else is
// preserved. Otherwise a new record is created with a generated id (when
// none is given), createdAt = now and pending status with flags off, unless
// the actor is privileged and supplies them.
func (r *Repository) Save(ctx context.Context, patch Patch, id string, actor Actor) (Promotion, error) {
	return r.save(ctx, patch, id, actor, false)
}

// UpdateStatus sets only the status. A missing id is a no-op.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("update status: %w: empty id", ErrInvalid)
	}
	_, err := r.tables.Update(ctx, Table, []backend.Filter{backend.Eq(colID, id)}, backend.Row{
		colStatus: string(NormalizeStatus(status)),
	})
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	return nil
}

// DeleteByAdmin removes the promotion unconditionally and drops it from
// every favorites set.
func (r *Repository) DeleteByAdmin(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("delete promotion: %w: empty id", ErrInvalid)
	}
	if err := r.tables.Delete(ctx, Table, []backend.Filter{backend.Eq(colID, id)}); err != nil {
		return fmt.Errorf("delete promotion %s: %w", id, err)
	}
	r.purgeFavorite(ctx, id)
	return nil
}

// DeleteByPartner removes the promotion when partnerID owns it or when its
// store name matches partnerName, whatever the row's owner id. Any other call
// is a silent no-op; deleted reports which case happened.
func (r *Repository) DeleteByPartner(ctx context.Context, id, partnerID, partnerName string) (deleted bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	target, found, err := r.fetch(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete promotion %s: %w", id, err)
	}
	if !found || !mayDelete(target, partnerID, partnerName) {
		return false, nil
	}
	if err := r.tables.Delete(ctx, Table, []backend.Filter{backend.Eq(colID, id)}); err != nil {
		return false, fmt.Errorf("delete promotion %s: %w", id, err)
	}
	r.purgeFavorite(ctx, id)
	return true, nil
}

func mayDelete(target Promotion, partnerID, partnerName string) bool {
	owner := strings.ToLower(strings.TrimSpace(target.PartnerID))
	caller := strings.ToLower(strings.TrimSpace(partnerID))
	if owner != "" && owner == caller {
		return true
	}
	store := strings.ToLower(strings.TrimSpace(target.StoreName))
	name := strings.ToLower(strings.TrimSpace(partnerName))
	return store != "" && name != "" && store == name
}

// SetFeatured toggles the featured flag of an existing promotion.
func (r *Repository) SetFeatured(ctx context.Context, id string, on bool) (Promotion, error) {
	return r.save(ctx, Patch{IsFeatured: Ptr(on)}, id, Actor{Privileged: true}, true)
}

// SetFlash turns the flash flag on for window (DefaultFlashWindow when zero)
// or off, in which case flashUntil is cleared.
func (r *Repository) SetFlash(ctx context.Context, id string, on bool, window time.Duration) (Promotion, error) {
	patch := Patch{IsFlash: Ptr(on), FlashUntil: ClearFlashUntil()}
	if on {
		if window <= 0 {
			window = DefaultFlashWindow
		}
		patch.FlashUntil = SetFlashUntil(r.now().Add(window))
	}
	return r.save(ctx, patch, id, Actor{Privileged: true}, true)
}

func (r *Repository) save(ctx context.Context, patch Patch, id string, actor Actor, mustExist bool) (Promotion, error) {
	id = strings.TrimSpace(id)
	if id != "" && !idPattern.MatchString(id) {
		return Promotion{}, fmt.Errorf("save promotion: %w: malformed id %q", ErrInvalid, id)
	}

	var (
		existing Promotion
		found    bool
	)
	if id != "" {
		var err error
		existing, found, err = r.fetch(ctx, id)
		if err != nil {
			return Promotion{}, fmt.Errorf("save promotion %s: %w", id, err)
		}
	}
	if !found && mustExist {
		return Promotion{}, fmt.Errorf("save promotion %s: %w", id, ErrNotFound)
	}

	var next Promotion
	if found {
		if !actor.Privileged && !strings.EqualFold(strings.TrimSpace(existing.PartnerID), strings.TrimSpace(actor.PartnerID)) {
			return Promotion{}, fmt.Errorf("save promotion %s: %w", id, ErrNotFound)
		}
		next = applyPatch(existing, patch, actor)
		if !actor.Privileged && contentChanged(existing, next) {
			next.Status = StatusPending
		}
		// Flag toggles leave content alone, so stored rows that no longer
		// validate can still be featured or flashed.
		if !patch.flagsOnly() {
			if err := validate(next); err != nil {
				return Promotion{}, err
			}
		}
	} else {
		if id == "" {
			id = NewID()
		}
		next = newPromotion(id, actor, r.now())
		next = applyPatch(next, patch, actor)
		if actor.Privileged && patch.PartnerID != nil && strings.TrimSpace(*patch.PartnerID) != "" {
			next.PartnerID = strings.TrimSpace(*patch.PartnerID)
		}
		if next.StoreName == "" {
			next.StoreName = strings.TrimSpace(actor.PartnerName)
		}
		if err := validate(next); err != nil {
			return Promotion{}, err
		}
	}

	out, err := r.tables.Upsert(ctx, Table, []backend.Row{ToRow(next)}, colID)
	if err != nil {
		return Promotion{}, fmt.Errorf("save promotion %s: %w", id, err)
	}
	if len(out) > 0 {
		return FromRow(out[0]), nil
	}
	return next, nil
}

func newPromotion(id string, actor Actor, now time.Time) Promotion {
	return Promotion{
		ID:              id,
		PartnerID:       strings.TrimSpace(actor.PartnerID),
		Status:          StatusPending,
		Category:        CategoryOther,
		DestinationType: DestinationWhatsApp,
		CreatedAt:       now.UTC(),
	}
}

// applyPatch merges the set fields of patch into p. Owner, status and
// promotion flags are only honoured for privileged actors.
func applyPatch(p Promotion, patch Patch, actor Actor) Promotion {
	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.StoreName != nil {
		p.StoreName = strings.TrimSpace(*patch.StoreName)
	}
	if patch.Category != nil {
		p.Category = NormalizeCategory(*patch.Category)
	}
	if patch.ImageURL != nil {
		p.ImageURL = NormalizeImageURL(*patch.ImageURL)
	}
	if patch.CurrentPrice != nil {
		p.CurrentPrice = NormalizePrice(*patch.CurrentPrice)
	}
	if patch.OldPrice != nil {
		p.OldPrice = NormalizePrice(*patch.OldPrice)
	}
	if patch.ExpiryDate != nil {
		p.ExpiryDate = NormalizeDate(*patch.ExpiryDate)
	}
	if patch.DestinationType != nil {
		p.DestinationType = NormalizeDestination(*patch.DestinationType)
	}
	if patch.DestinationURL != nil {
		p.DestinationURL = *patch.DestinationURL
	}
	p.DestinationURL = NormalizeDestinationURL(p.DestinationType, p.DestinationURL)

	if !actor.Privileged {
		return p
	}
	if patch.Status != nil {
		p.Status = NormalizeStatus(*patch.Status)
	}
	if patch.IsFeatured != nil {
		p.IsFeatured = *patch.IsFeatured
	}
	if patch.IsFlash != nil {
		p.IsFlash = *patch.IsFlash
		if !p.IsFlash {
			p.FlashUntil = nil
		}
	}
	if patch.FlashUntil != nil {
		p.FlashUntil = *patch.FlashUntil
	}
	if patch.IsSponsored != nil {
		p.IsSponsored = *patch.IsSponsored
	}
	if patch.SponsorLabel != nil {
		p.SponsorLabel = strings.TrimSpace(*patch.SponsorLabel)
	}
	return p
}

func contentChanged(prev, next Promotion) bool {
	return prev.Title != next.Title ||
		prev.Description != next.Description ||
		prev.StoreName != next.StoreName ||
		prev.Category != next.Category ||
		prev.ImageURL != next.ImageURL ||
		prev.CurrentPrice != next.CurrentPrice ||
		prev.OldPrice != next.OldPrice ||
		prev.ExpiryDate != next.ExpiryDate ||
		prev.DestinationType != next.DestinationType ||
		prev.DestinationURL != next.DestinationURL
}

func validate(p Promotion) error {
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if p.CurrentPrice <= 0 {
		return fmt.Errorf("%w: current price is required", ErrInvalid)
	}
	return nil
}

func (r *Repository) fetch(ctx context.Context, id string) (Promotion, bool, error) {
	rows, err := r.tables.Select(ctx, backend.Query{
		Table:   Table,
		Filters: []backend.Filter{backend.Eq(colID, id)},
		Limit:   1,
	})
	if err != nil {
		return Promotion{}, false, err
	}
	if len(rows) == 0 {
		return Promotion{}, false, nil
	}
	return FromRow(rows[0]), true, nil
}

// normalizeRows maps rows and drops duplicate ids, keeping the last one.
func (r *Repository) normalizeRows(rows []backend.Row) []Promotion {
	index := make(map[string]int, len(rows))
	out := make([]Promotion, 0, len(rows))
	for _, row := range rows {
		p := FromRow(row)
		if i, dup := index[p.ID]; dup {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func (r *Repository) purgeFavorite(ctx context.Context, id string) {
	if r.favorites == nil {
		return
	}
	if err := r.favorites.Purge(ctx, id); err != nil {
		r.logger.Warn("purge favorites failed", "promotion_id", id, "error", err)
		r.metrics.IncError("favorites")
	}
}

// SortPromotions orders active flash promotions first, then newest first,
// then by id for a stable tiebreak.
func SortPromotions(list []Promotion, now time.Time) {
	sort.SliceStable(list, func(i, j int) bool {
		fi, fj := list[i].IsFlashActive(now), list[j].IsFlashActive(now)
		if fi != fj {
			return fi
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
