package post

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	MemberID    string     `json:"memberId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type CreateRequest struct {
	Title    string `json:"title" validate:"required,max=255"`
	Content  string `json:"content"`
	Status   string `json:"status" validate:"omitempty,oneof=draft published"`
	MemberID string `json:"memberId" validate:"required"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published"`
}
