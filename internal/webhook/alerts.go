package webhook

import (
	"context"

	"pechincha/internal/promo"
)

// PendingNotifier is told about promotions that entered review.
type PendingNotifier interface {
	NotifyPendingPromotion(ctx context.Context, p promo.Promotion, resubmitted bool)
}

// PromotionAlerts notifies the admin when a promotion is created pending or
// moves back to pending after an edit.
type PromotionAlerts struct {
	notifier PendingNotifier
}

// NewPromotionAlerts builds the processor.
func NewPromotionAlerts(n PendingNotifier) *PromotionAlerts {
	return &PromotionAlerts{notifier: n}
}

func (a *PromotionAlerts) HandleEvent(ctx context.Context, evt Event) error {
	if evt.Table != promo.Table || evt.Record == nil {
		return nil
	}
	current := promo.FromRow(evt.Record)
	if current.Status != promo.StatusPending {
		return nil
	}
	switch evt.Type {
	case "INSERT":
		a.notifier.NotifyPendingPromotion(ctx, current, false)
	case "UPDATE":
		if evt.OldRecord != nil && promo.FromRow(evt.OldRecord).Status != promo.StatusPending {
			a.notifier.NotifyPendingPromotion(ctx, current, true)
		}
	}
	return nil
}
