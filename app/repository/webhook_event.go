package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			purchase_id, provider_event_id, event_type, signature, payload_json, status, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(event.PurchaseID),
		event.ProviderEventID,
		event.EventType,
		event.Signature,
		event.PayloadJSON,
		event.Status,
		nullableStringValue(event.Error),
		event.CreatedAt,
		event.UpdatedAt,
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
