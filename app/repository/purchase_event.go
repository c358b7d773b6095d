package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

type PurchaseEventRepository struct {
	db DBTX
}

func NewPurchaseEventRepository(db DBTX) *PurchaseEventRepository {
	return &PurchaseEventRepository{db: db}
}

func (r *PurchaseEventRepository) Create(ctx context.Context, event *entity.PurchaseEvent) error {
	query := `
		INSERT INTO purchase_events (
			purchase_id, event_type, old_status, new_status, provider_event_id, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.PurchaseID,
		event.EventType,
		nullableInt32Value(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.ProviderEventID),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}
