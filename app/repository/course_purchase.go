package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

var (
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrPurchaseAlreadyExists = errors.New("purchase already exists")
)

const purchaseColumns = `
	id, course_id, user_id, amount, currency, status,
	provider_session_id, checkout_url, completed_at, created_at, updated_at
`

type CoursePurchaseRepository struct {
	db DBTX
}

func NewCoursePurchaseRepository(db DBTX) *CoursePurchaseRepository {
	return &CoursePurchaseRepository{db: db}
}

func (r *CoursePurchaseRepository) Create(ctx context.Context, purchase *entity.CoursePurchase) error {
	query := `
		INSERT INTO course_purchases (
			course_id, user_id, amount, currency, status,
			provider_session_id, checkout_url, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		purchase.CourseID,
		purchase.UserID,
		purchase.Amount,
		purchase.Currency,
		purchase.Status,
		nullableStringValue(purchase.ProviderSessionID),
		nullableStringValue(purchase.CheckoutURL),
		nullableTimeValue(purchase.CompletedAt),
		purchase.CreatedAt,
		purchase.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPurchaseAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	purchase.ID = uint64(id)
	return nil
}

// AttachCheckoutSession stores the provider session on a purchase that has none yet.
func (r *CoursePurchaseRepository) AttachCheckoutSession(ctx context.Context, id uint64, sessionID, checkoutURL string, now time.Time) error {
	query := `
		UPDATE course_purchases SET
			provider_session_id = ?,
			checkout_url = ?,
			updated_at = ?
		WHERE id = ? AND provider_session_id IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, sessionID, checkoutURL, now, id)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPurchaseAlreadyExists
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPurchaseNotFound
	}

	return nil
}

// MarkCompleted moves a purchase to completed with the provider's final amount.
// completed_at keeps the first completion time, and no statement here can
// move a purchase out of completed.
func (r *CoursePurchaseRepository) MarkCompleted(ctx context.Context, id uint64, amount int64, now time.Time) error {
	query := `
		UPDATE course_purchases SET
			status = ?,
			amount = ?,
			completed_at = COALESCE(completed_at, ?),
			updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, entity.PurchaseStatusCompleted, amount, now, now, id)
	return err
}

func (r *CoursePurchaseRepository) FindByID(ctx context.Context, id uint64) (*entity.CoursePurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM course_purchases WHERE id = ?`

	purchase := &entity.CoursePurchase{}
	if err := scanPurchase(r.db.QueryRowContext(ctx, query, id), purchase); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return purchase, nil
}

// FindLatestByUserCourse returns the most recently created purchase for the pair
// in the given status.
func (r *CoursePurchaseRepository) FindLatestByUserCourse(ctx context.Context, userID string, courseID uint64, status int32) (*entity.CoursePurchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM course_purchases
		WHERE user_id = ? AND course_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	purchase := &entity.CoursePurchase{}
	if err := scanPurchase(r.db.QueryRowContext(ctx, query, userID, courseID, status), purchase); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return purchase, nil
}

// ExistsForUserCourse reports whether any purchase exists for the pair, or only
// completed ones when completedOnly is set.
func (r *CoursePurchaseRepository) ExistsForUserCourse(ctx context.Context, userID string, courseID uint64, completedOnly bool) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM course_purchases WHERE user_id = ? AND course_id = ?`
	args := []interface{}{userID, courseID}
	if completedOnly {
		query += ` AND status = ?`
		args = append(args, entity.PurchaseStatusCompleted)
	}
	query += `)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListStalePending returns pending purchases with a checkout session that were
// created after createdAfter and not touched since updatedBefore.
func (r *CoursePurchaseRepository) ListStalePending(ctx context.Context, createdAfter, updatedBefore time.Time, limit int32) ([]*entity.CoursePurchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM course_purchases
		WHERE status = ?
		  AND provider_session_id IS NOT NULL
		  AND created_at >= ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PurchaseStatusPending, createdAfter, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]*entity.CoursePurchase, 0)
	for rows.Next() {
		item := &entity.CoursePurchase{}
		if err := scanPurchase(rows, item); err != nil {
			return nil, err
		}
		purchases = append(purchases, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return purchases, nil
}

func scanPurchase(scan rowScanner, purchase *entity.CoursePurchase) error {
	var sessionID sql.NullString
	var checkoutURL sql.NullString
	var completedAt sql.NullTime

	err := scan.Scan(
		&purchase.ID,
		&purchase.CourseID,
		&purchase.UserID,
		&purchase.Amount,
		&purchase.Currency,
		&purchase.Status,
		&sessionID,
		&checkoutURL,
		&completedAt,
		&purchase.CreatedAt,
		&purchase.UpdatedAt,
	)
	if err != nil {
		return err
	}

	purchase.ProviderSessionID = stringPtrFromNull(sessionID)
	purchase.CheckoutURL = stringPtrFromNull(checkoutURL)
	purchase.CompletedAt = timePtrFromNull(completedAt)
	return nil
}
