package entity

import "time"

type LectureProgress struct {
	LectureID string `json:"lecture_id"`
	Viewed    bool   `json:"viewed"`
}

// CourseProgress is unique per (UserID, CourseID).
type CourseProgress struct {
	ID uint64

	UserID   string
	CourseID uint64

	Completed       bool
	LectureProgress []LectureProgress

	CreatedAt time.Time
	UpdatedAt time.Time
}
