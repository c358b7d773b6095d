package provider

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSessionNotFound  = errors.New("checkout session not found")
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"

	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

type CheckoutInput struct {
	PurchaseID   uint64
	CourseID     uint64
	UserID       string
	CourseTitle  string
	ThumbnailURL string
	Amount       int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

type CheckoutSession struct {
	ID                string
	URL               string
	ClientReferenceID string
	Status            string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	Metadata          map[string]string
}

func (s *CheckoutSession) IsPaid() bool {
	return s != nil && s.PaymentStatus == PaymentStatusPaid
}

type WebhookEvent struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, input *CheckoutInput) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
