package service

import (
	"context"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

// RunReconcileBatch polls the provider for pending purchases whose checkout
// has gone quiet and reconciles those the provider reports as paid. Purchases
// without a checkout session are left alone.
func (s *PurchaseService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	staleAfter := s.cfg.ReconcileStaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	items, err := s.purchaseRepo.ListStalePending(ctx, now.Add(-checkoutSessionMaxAge), now.Add(-staleAfter), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, purchase := range items {
		if purchase == nil || purchase.ProviderSessionID == nil || strings.TrimSpace(*purchase.ProviderSessionID) == "" {
			continue
		}

		session, err := s.fetchCheckoutSession(ctx, *purchase.ProviderSessionID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !session.IsPaid() {
			continue
		}

		oldStatus := purchase.Status
		result, err := s.Reconcile(ctx, ReconcileInput{
			PurchaseID:  purchase.ID,
			CourseID:    purchase.CourseID,
			UserID:      purchase.UserID,
			FinalAmount: session.AmountTotal,
			Trigger:     TriggerSweep,
		})
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		sessionID := session.ID
		_ = s.eventRepo.Create(ctx, &entity.PurchaseEvent{
			PurchaseID:      purchase.ID,
			EventType:       "purchase_reconciled",
			OldStatus:       &oldStatus,
			NewStatus:       result.Purchase.Status,
			ProviderEventID: &sessionID,
			CreatedAt:       time.Now().UTC(),
		})
	}

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
