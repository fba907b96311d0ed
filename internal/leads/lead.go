// Package leads stores prospective-partner inquiries from the advertise form.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pechincha/internal/backend"
	"pechincha/internal/metrics"
	"pechincha/internal/promo"
)

// Table is the backend table holding leads.
const Table = "partner_leads"

// notifyTimeout bounds one new-lead alert.
const notifyTimeout = 15 * time.Second

var (
	// ErrInvalid wraps every validation failure of a lead.
	ErrInvalid = errors.New("invalid lead")
	// ErrNotFound is returned when a lead id does not exist.
	ErrNotFound = errors.New("lead not found")
)

// Status is the triage state of a lead.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

var statusSynonyms = map[string]Status{
	"new":       StatusNew,
	"novo":      StatusNew,
	"nova":      StatusNew,
	"contacted": StatusContacted,
	"contatado": StatusContacted,
	"contatada": StatusContacted,
	"approved":  StatusApproved,
	"aprovado":  StatusApproved,
	"aprovada":  StatusApproved,
	"rejected":  StatusRejected,
	"rejeitado": StatusRejected,
	"rejeitada": StatusRejected,
	"reprovado": StatusRejected,
	"reprovada": StatusRejected,
}

// NormalizeStatus maps any spelling onto the closed set; unknown values are new.
func NormalizeStatus(raw any) Status {
	if s, ok := statusSynonyms[promo.Fold(backend.AsString(raw))]; ok {
		return s
	}
	return StatusNew
}

// ParseStatus is NormalizeStatus without the fallback.
func ParseStatus(raw string) (Status, bool) {
	s, ok := statusSynonyms[promo.Fold(raw)]
	return s, ok
}

// Lead is one prospective-partner inquiry.
type Lead struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"companyName"`
	Segment     string    `json:"segment"`
	City        string    `json:"city"`
	WhatsApp    string    `json:"whatsapp"`
	Notes       string    `json:"notes,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Input is what the public advertise form submits.
type Input struct {
	CompanyName string `json:"companyName"`
	Segment     string `json:"segment"`
	City        string `json:"city"`
	WhatsApp    string `json:"whatsapp"`
	Notes       string `json:"notes"`
}

// Notifier is told about every new lead.
type Notifier interface {
	NotifyNewLead(ctx context.Context, l Lead)
}

// Repository reads and writes leads.
type Repository struct {
	tables      backend.Tables
	notifier    Notifier
	defaultCity string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewRepository builds a lead repository. notifier may be nil.
func NewRepository(tables backend.Tables, notifier Notifier, defaultCity string, logger *slog.Logger, m *metrics.Metrics) *Repository {
	return &Repository{
		tables:      tables,
		notifier:    notifier,
		defaultCity: strings.TrimSpace(defaultCity),
		logger:      logger.With("component", "leads"),
		metrics:     m,
		now:         time.Now,
	}
}

// Create validates in and stores a new lead with status new.
func (r *Repository) Create(ctx context.Context, in Input) (Lead, error) {
	l := Lead{
		ID:          uuid.NewString(),
		CompanyName: strings.TrimSpace(in.CompanyName),
		Segment:     strings.TrimSpace(in.Segment),
		City:        strings.TrimSpace(in.City),
		WhatsApp:    promo.OnlyDigits(in.WhatsApp),
		Notes:       strings.TrimSpace(in.Notes),
		Status:      StatusNew,
		CreatedAt:   r.now().UTC(),
	}
	if l.City == "" {
		l.City = r.defaultCity
	}
	if err := validate(l); err != nil {
		return Lead{}, err
	}

	rows, err := r.tables.Upsert(ctx, Table, []backend.Row{toRow(l)}, "id")
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	if len(rows) > 0 {
		l = fromRow(rows[0])
	}
	r.logger.Info("lead created", "lead_id", l.ID, "company", l.CompanyName)
	if r.notifier != nil {
		go r.notify(context.WithoutCancel(ctx), l)
	}
	return l, nil
}

// notify sends the admin alert off the request path.
func (r *Repository) notify(ctx context.Context, l Lead) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	r.notifier.NotifyNewLead(ctx, l)
}

func validate(l Lead) error {
	switch {
	case l.CompanyName == "":
		return fmt.Errorf("%w: company name is required", ErrInvalid)
	case len(l.CompanyName) > 120:
		return fmt.Errorf("%w: company name is too long", ErrInvalid)
	case len(l.WhatsApp) < 10 || len(l.WhatsApp) > 13:
		return fmt.Errorf("%w: whatsapp must have 10 to 13 digits", ErrInvalid)
	case len(l.Notes) > 2000:
		return fmt.Errorf("%w: notes are too long", ErrInvalid)
	}
	return nil
}

// List returns every lead, newest first. Backend failures yield an empty list.
func (r *Repository) List(ctx context.Context) []Lead {
	rows, err := r.tables.Select(ctx, backend.Query{
		Table: Table,
		Order: []backend.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		r.logger.Warn("lead list degraded to empty result", "error", err)
		r.metrics.IncDegraded("list_leads")
		return []Lead{}
	}
	out := make([]Lead, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Get returns the lead with id.
func (r *Repository) Get(ctx context.Context, id string) (Lead, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Lead{}, false
	}
	rows, err := r.tables.Select(ctx, backend.Query{
		Table:   Table,
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		r.logger.Warn("lead lookup degraded to absent", "lead_id", id, "error", err)
		r.metrics.IncDegraded("get_lead")
		return Lead{}, false
	}
	if len(rows) == 0 {
		return Lead{}, false
	}
	return fromRow(rows[0]), true
}

// UpdateStatus moves a lead to status. Unknown ids are a no-op.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	_, err := r.tables.Update(ctx, Table, []backend.Filter{backend.Eq("id", id)}, backend.Row{
		"status": string(NormalizeStatus(string(status))),
	})
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return nil
}

func toRow(l Lead) backend.Row {
	return backend.Row{
		"id":           l.ID,
		"company_name": l.CompanyName,
		"segment":      l.Segment,
		"city":         l.City,
		"whatsapp":     l.WhatsApp,
		"notes":        l.Notes,
		"status":       string(l.Status),
		"created_at":   l.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromRow(row backend.Row) Lead {
	l := Lead{
		ID:          row.String("id"),
		CompanyName: strings.TrimSpace(row.String("company_name", "companyName")),
		Segment:     strings.TrimSpace(row.String("segment")),
		City:        strings.TrimSpace(row.String("city")),
		WhatsApp:    promo.OnlyDigits(row.String("whatsapp", "phone")),
		Notes:       strings.TrimSpace(row.String("notes")),
		Status:      NormalizeStatus(row.String("status")),
	}
	if raw, ok := row.Raw("created_at", "createdAt"); ok {
		if t, ok := backend.ParseTime(raw); ok {
			l.CreatedAt = t.UTC()
		}
	}
	return l
}
