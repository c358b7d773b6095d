package entity

import "time"

type PurchaseEvent struct {
	ID uint64

	PurchaseID uint64

	EventType string

	OldStatus *int32
	NewStatus int32

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}
