package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

func TestCourseToResponse(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("ICT", 7*3600))
	out := CourseToResponse(&entity.Course{
		ID:           7,
		Title:        "Go Basics",
		ThumbnailURL: "https://cdn.example/go.png",
		Price:        100000,
		Currency:     "vnd",
		CreatorID:    "creator-1",
		IsPublished:  true,
		CreatedAt:    created,
	})

	if out.Id != 7 || out.Title != "Go Basics" || out.ThumbnailUrl != "https://cdn.example/go.png" || out.Price != 100000 {
		t.Fatalf("unexpected course: %+v", out)
	}
	if out.CreatedAt != "2026-01-01T20:04:05Z" {
		t.Fatalf("expected UTC timestamp, got %q", out.CreatedAt)
	}
	if out.UpdatedAt != "" {
		t.Fatalf("expected empty updated_at for zero time, got %q", out.UpdatedAt)
	}
}

func TestCoursesToResponseNeverNil(t *testing.T) {
	out := CoursesToResponse(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty slice, got %v", out)
	}
	if CourseToResponse(nil) != nil {
		t.Fatal("expected nil for nil course")
	}
}
