package entity

import "time"

type Course struct {
	ID uint64

	Title        string
	Subtitle     string
	Category     string
	Level        string
	ThumbnailURL string

	Price    int64
	Currency string

	CreatorID   string
	IsPublished bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
