package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
	"github.com/vibast-solutions/ms-go-course-purchases/app/types"
)

func CourseToResponse(item *entity.Course) *types.Course {
	if item == nil {
		return nil
	}

	return &types.Course{
		Id:           item.ID,
		Title:        item.Title,
		Subtitle:     item.Subtitle,
		Category:     item.Category,
		Level:        item.Level,
		ThumbnailUrl: item.ThumbnailURL,
		Price:        item.Price,
		Currency:     item.Currency,
		CreatorId:    item.CreatorID,
		IsPublished:  item.IsPublished,
		CreatedAt:    formatTime(item.CreatedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
}

func CoursesToResponse(items []*entity.Course) []*types.Course {
	result := make([]*types.Course, 0, len(items))
	for _, item := range items {
		result = append(result, CourseToResponse(item))
	}
	return result
}

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
