package entity

import "time"

const (
	WebhookEventProcessed int32 = 10
	WebhookEventIgnored   int32 = 15
	WebhookEventFailed    int32 = 20
)

type WebhookEvent struct {
	ID uint64

	PurchaseID *uint64

	ProviderEventID string
	EventType       string
	Signature       string
	PayloadJSON     string
	Status          int32
	Error           *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
