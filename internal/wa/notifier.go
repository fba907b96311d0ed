package wa

import (
	"context"
	"fmt"
	"log/slog"

	"pechincha/internal/leads"
	"pechincha/internal/metrics"
	"pechincha/internal/promo"
)

// Notifier alerts the admin about items awaiting triage.
type Notifier interface {
	NotifyNewLead(ctx context.Context, l leads.Lead)
	NotifyPendingPromotion(ctx context.Context, p promo.Promotion, resubmitted bool)
}

// Sender delivers a text to a phone number.
type Sender interface {
	SendText(ctx context.Context, number, text string) error
}

// LogNotifier only logs; used when WhatsApp is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier builds a logging notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) NotifyNewLead(_ context.Context, l leads.Lead) {
	n.logger.Info("new partner lead", "lead_id", l.ID, "company", l.CompanyName, "city", l.City)
}

func (n *LogNotifier) NotifyPendingPromotion(_ context.Context, p promo.Promotion, resubmitted bool) {
	n.logger.Info("promotion awaiting review", "promotion_id", p.ID, "store", p.StoreName, "resubmitted", resubmitted)
}

// AdminNotifier messages the admin number and falls back to logging.
type AdminNotifier struct {
	sender  Sender
	admin   string
	appName string
	logger  *slog.Logger
	metrics *metrics.Metrics
	log     *LogNotifier
}

// NewAdminNotifier sends notifications to admin through sender.
func NewAdminNotifier(sender Sender, admin, appName string, logger *slog.Logger, m *metrics.Metrics) *AdminNotifier {
	return &AdminNotifier{
		sender:  sender,
		admin:   admin,
		appName: appName,
		logger:  logger.With("component", "admin_notifier"),
		metrics: m,
		log:     NewLogNotifier(logger),
	}
}

func (n *AdminNotifier) NotifyNewLead(ctx context.Context, l leads.Lead) {
	n.log.NotifyNewLead(ctx, l)
	text := fmt.Sprintf("📣 NOVO LEAD DE PARCEIRO\n\n🏪 Empresa: %s\n📌 Segmento: %s\n📍 Cidade: %s\n📲 WhatsApp: %s",
		l.CompanyName, l.Segment, l.City, l.WhatsApp)
	if l.Notes != "" {
		text += "\n📝 " + l.Notes
	}
	if link := LeadContactLink(l, n.appName); link != "" {
		text += "\n\n" + link
	}
	n.send(ctx, text)
}

func (n *AdminNotifier) NotifyPendingPromotion(ctx context.Context, p promo.Promotion, resubmitted bool) {
	n.log.NotifyPendingPromotion(ctx, p, resubmitted)
	header := "🆕 PROMOÇÃO AGUARDANDO APROVAÇÃO"
	if resubmitted {
		header = "✏️ PROMOÇÃO EDITADA AGUARDANDO APROVAÇÃO"
	}
	text := header + "\n\n" +
		fmt.Sprintf("🏪 Loja: %s\n🛒 Produto: %s\n", p.StoreName, p.Title) +
		priceLines(p, "Preço") +
		fmt.Sprintf("🆔 ID: %s", p.ID)
	n.send(ctx, text)
}

func (n *AdminNotifier) send(ctx context.Context, text string) {
	if err := n.sender.SendText(ctx, n.admin, text); err != nil {
		n.logger.Warn("admin notification not delivered", "error", err)
		n.metrics.IncError("wa_notify")
	}
}
