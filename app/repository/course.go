package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

const courseColumns = `
	c.id, c.title, c.subtitle, c.category, c.level, c.thumbnail_url,
	c.price, c.currency, c.creator_id, c.is_published, c.created_at, c.updated_at
`

type CourseRepository struct {
	db DBTX
}

func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) FindByID(ctx context.Context, id uint64) (*entity.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses c WHERE c.id = ?`

	course := &entity.Course{}
	if err := scanCourse(r.db.QueryRowContext(ctx, query, id), course); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return course, nil
}

// ListPurchasedByUser returns each course with at least one completed purchase
// by userID, most recently completed first.
func (r *CourseRepository) ListPurchasedByUser(ctx context.Context, userID string) ([]*entity.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses c
		INNER JOIN (
			SELECT course_id, MAX(completed_at) AS last_completed_at
			FROM course_purchases
			WHERE user_id = ? AND status = ?
			GROUP BY course_id
		) p ON p.course_id = c.id
		ORDER BY p.last_completed_at DESC, c.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, entity.PurchaseStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]*entity.Course, 0)
	for rows.Next() {
		item := &entity.Course{}
		if err := scanCourse(rows, item); err != nil {
			return nil, err
		}
		courses = append(courses, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return courses, nil
}

func scanCourse(scan rowScanner, course *entity.Course) error {
	var subtitle, category, level, thumbnail sql.NullString
	err := scan.Scan(
		&course.ID,
		&course.Title,
		&subtitle,
		&category,
		&level,
		&thumbnail,
		&course.Price,
		&course.Currency,
		&course.CreatorID,
		&course.IsPublished,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return err
	}

	course.Subtitle = subtitle.String
	course.Category = category.String
	course.Level = level.String
	course.ThumbnailURL = thumbnail.String
	return nil
}
