package photo

import (
	"io"
	"time"
)

type Photo struct {
	ID        string     `json:"id"`
	FileName  string     `json:"fileName"`
	FileSize  int64      `json:"fileSize"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	TakenAt   *time.Time `json:"takenAt"`
	MemberID  string     `json:"memberId"`
	PostID    *string    `json:"postId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Analysis struct {
	ID        string    `json:"id"`
	Caption   string    `json:"caption"`
	Story     string    `json:"story"`
	PhotoID   string    `json:"photoId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PhotoDetail is a photo with its analysis, when one exists.
type PhotoDetail struct {
	Photo
	Analysis *Analysis `json:"analysis"`
}

type NearbyPhoto struct {
	Photo
	DistanceKm float64 `json:"distanceKm"`
}

// AnalysisContext carries the free-text details a member supplies for the
// story. Blank fields fall back to placeholders.
type AnalysisContext struct {
	Mood        string `json:"mood" validate:"max=255"`
	Place       string `json:"place" validate:"max=255"`
	Age         string `json:"age" validate:"max=64"`
	Companions  string `json:"companions" validate:"max=255"`
	Personality string `json:"personality" validate:"max=64"`
	Situation   string `json:"situation" validate:"max=1000"`
}

type UploadInput struct {
	File         io.Reader
	OriginalName string
	MemberID     string
	PostID       string
}

type Metadata struct {
	TakenAt   *time.Time
	Latitude  *float64
	Longitude *float64
}
