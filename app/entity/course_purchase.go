package entity

import "time"

const (
	PurchaseStatusPending   int32 = 1
	PurchaseStatusCompleted int32 = 10
	PurchaseStatusFailed    int32 = 20
)

type CoursePurchase struct {
	ID uint64

	CourseID uint64
	UserID   string

	Amount   int64
	Currency string

	Status int32

	ProviderSessionID *string
	CheckoutURL       *string

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *CoursePurchase) IsCompleted() bool {
	return p != nil && p.Status == PurchaseStatusCompleted
}
