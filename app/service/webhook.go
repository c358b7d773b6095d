package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
	"github.com/vibast-solutions/ms-go-course-purchases/app/provider"
)

type handleWebhookRequest interface {
	GetPayload() string
	GetSignature() string
}

type WebhookResult struct {
	EventID        string
	EventType      string
	Handled        bool
	Duplicate      bool
	Reconciliation *ReconciliationResult
}

// HandleWebhook verifies a provider delivery and reconciles completed checkout
// sessions. Deliveries failing verification are rejected before anything is
// written. Event types other than a completed checkout are acknowledged and
// ignored.
func (s *PurchaseService) HandleWebhook(ctx context.Context, req handleWebhookRequest) (*WebhookResult, error) {
	payload := []byte(req.GetPayload())
	signature := strings.TrimSpace(req.GetSignature())

	event, err := s.payments.VerifyAndParseWebhook(ctx, payload, signature)
	if err != nil {
		s.metrics.IncWebhook("rejected")
		if errors.Is(err, provider.ErrInvalidSignature) {
			s.logger.WithError(err).Warn("Webhook signature rejected")
			return nil, ErrInvalidSignature
		}
		s.logger.WithError(err).Warn("Webhook payload rejected")
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	l := s.logger.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	if event.ID != "" && s.processedEvents.Contains(event.ID) {
		s.metrics.IncWebhook("duplicate")
		l.Debug("Webhook event already processed")
		result.Duplicate = true
		return result, nil
	}

	if event.Type != provider.EventCheckoutSessionCompleted {
		s.recordWebhook(ctx, event, signature, payload, nil, entity.WebhookEventIgnored, nil)
		s.metrics.IncWebhook("ignored")
		l.Debug("Webhook event ignored")
		return result, nil
	}

	input, err := reconcileInputFromSession(event.Session)
	if err != nil {
		s.recordWebhook(ctx, event, signature, payload, nil, entity.WebhookEventFailed, err)
		s.metrics.IncWebhook("failed")
		l.WithError(err).Warn("Webhook checkout session is missing purchase metadata")
		return nil, err
	}
	input.Trigger = TriggerWebhook
	if event.ID != "" {
		eventID := event.ID
		input.ProviderEventID = &eventID
	}

	reconciliation, err := s.Reconcile(ctx, input)
	if err != nil {
		s.recordWebhook(ctx, event, signature, payload, &input.PurchaseID, entity.WebhookEventFailed, err)
		s.metrics.IncWebhook("failed")
		return nil, err
	}

	s.recordWebhook(ctx, event, signature, payload, &input.PurchaseID, entity.WebhookEventProcessed, nil)
	if event.ID != "" {
		s.processedEvents.Add(event.ID, struct{}{})
	}
	s.metrics.IncWebhook("processed")

	result.Handled = true
	result.Reconciliation = reconciliation
	return result, nil
}

func reconcileInputFromSession(session *provider.CheckoutSession) (ReconcileInput, error) {
	if session == nil {
		return ReconcileInput{}, fmt.Errorf("%w: checkout session missing from event", ErrInvalidRequest)
	}

	courseID, err := strconv.ParseUint(strings.TrimSpace(session.Metadata["course_id"]), 10, 64)
	if err != nil || courseID == 0 {
		return ReconcileInput{}, fmt.Errorf("%w: invalid course_id metadata", ErrInvalidRequest)
	}
	userID := strings.TrimSpace(session.Metadata["user_id"])
	if userID == "" {
		return ReconcileInput{}, fmt.Errorf("%w: missing user_id metadata", ErrInvalidRequest)
	}

	rawPurchaseID := strings.TrimSpace(session.Metadata["purchase_id"])
	if rawPurchaseID == "" {
		rawPurchaseID = session.ClientReferenceID
	}
	purchaseID, err := strconv.ParseUint(rawPurchaseID, 10, 64)
	if err != nil || purchaseID == 0 {
		return ReconcileInput{}, fmt.Errorf("%w: invalid purchase_id metadata", ErrInvalidRequest)
	}

	return ReconcileInput{
		PurchaseID:  purchaseID,
		CourseID:    courseID,
		UserID:      userID,
		FinalAmount: session.AmountTotal,
	}, nil
}

func (s *PurchaseService) recordWebhook(
	ctx context.Context,
	event *provider.WebhookEvent,
	signature string,
	payload []byte,
	purchaseID *uint64,
	status int32,
	processErr error,
) {
	now := time.Now().UTC()
	item := &entity.WebhookEvent{
		PurchaseID:      purchaseID,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Signature:       signature,
		PayloadJSON:     string(payload),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if processErr != nil {
		msg := truncate(processErr.Error(), 1024)
		item.Error = &msg
	}

	if err := s.webhookRepo.Create(ctx, item); err != nil {
		s.logger.WithError(err).WithField("event_id", event.ID).Warn("Failed to record webhook event")
	}
}
