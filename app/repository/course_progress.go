package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

type CourseProgressRepository struct {
	db DBTX
}

func NewCourseProgressRepository(db DBTX) *CourseProgressRepository {
	return &CourseProgressRepository{db: db}
}

// Ensure inserts progress for (UserID, CourseID) unless a record already exists,
// then returns the stored record. The unique key on the pair makes concurrent
// callers converge on a single row.
func (r *CourseProgressRepository) Ensure(ctx context.Context, progress *entity.CourseProgress) (*entity.CourseProgress, error) {
	lectureJSON, err := serializeLectureProgress(progress.LectureProgress)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO course_progress (user_id, course_id, completed, lecture_progress_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`
	if _, err := r.db.ExecContext(ctx, query,
		progress.UserID,
		progress.CourseID,
		progress.Completed,
		lectureJSON,
		progress.CreatedAt,
		progress.UpdatedAt,
	); err != nil {
		return nil, err
	}

	stored, err := r.FindByUserCourse(ctx, progress.UserID, progress.CourseID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (r *CourseProgressRepository) FindByUserCourse(ctx context.Context, userID string, courseID uint64) (*entity.CourseProgress, error) {
	query := `
		SELECT id, user_id, course_id, completed, lecture_progress_json, created_at, updated_at
		FROM course_progress
		WHERE user_id = ? AND course_id = ?
	`

	var lectureJSON string
	progress := &entity.CourseProgress{}
	err := r.db.QueryRowContext(ctx, query, userID, courseID).Scan(
		&progress.ID,
		&progress.UserID,
		&progress.CourseID,
		&progress.Completed,
		&lectureJSON,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := parseLectureProgress(lectureJSON)
	if err != nil {
		return nil, err
	}
	progress.LectureProgress = items
	return progress, nil
}
