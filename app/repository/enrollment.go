package repository

import (
	"context"
	"time"
)

// EnrollmentRepository maintains the two membership sets linking users and
// courses. Both writes are set-adds: re-adding a pair is a no-op.
type EnrollmentRepository struct {
	db DBTX
}

func NewEnrollmentRepository(db DBTX) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) AddUserCourse(ctx context.Context, userID string, courseID uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO user_enrollments (user_id, course_id, created_at) VALUES (?, ?, ?)`,
		userID, courseID, now,
	)
	return err
}

func (r *EnrollmentRepository) AddCourseStudent(ctx context.Context, courseID uint64, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO course_students (course_id, user_id, created_at) VALUES (?, ?, ?)`,
		courseID, userID, now,
	)
	return err
}

func (r *EnrollmentRepository) ListCourseIDsForUser(ctx context.Context, userID string) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT course_id FROM user_enrollments WHERE user_id = ? ORDER BY created_at ASC, course_id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *EnrollmentRepository) ListStudentIDsForCourse(ctx context.Context, courseID uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM course_students WHERE course_id = ? ORDER BY created_at ASC, user_id ASC`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
