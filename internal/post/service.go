package post

import (
	"context"
	"time"

	"backend-dailyrecord/internal/db"
	"backend-dailyrecord/internal/shared/apperr"
	"backend-dailyrecord/internal/validation"

	"github.com/google/uuid"
)

const postColumns = `id, title, content, status, published_at, member_id, created_at, updated_at`

type Service struct {
	db  db.Querier
	now func() time.Time
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Post, error) {
	if err := validation.Struct(req); err != nil {
		return Post{}, err
	}
	p := Post{
		ID:       uuid.NewString(),
		Title:    req.Title,
		Content:  req.Content,
		Status:   req.Status,
		MemberID: req.MemberID,
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Status == StatusPublished {
		now := s.now()
		p.PublishedAt = &now
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO posts (id, title, content, status, published_at, member_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at
	`, p.ID, p.Title, p.Content, p.Status, p.PublishedAt, p.MemberID)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if db.IsForeignKeyViolation(err) || db.IsNotFound(err) {
			return Post{}, apperr.NotFound("member not found")
		}
		return Post{}, apperr.Upstream(err, "could not create post")
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Post, error) {
	var p Post
	err := s.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id).
		Scan(&p.ID, &p.Title, &p.Content, &p.Status, &p.PublishedAt, &p.MemberID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return Post{}, apperr.NotFound("post not found")
		}
		return Post{}, apperr.Upstream(err, "could not load post")
	}
	return p, nil
}

func (s *Service) ByMember(ctx context.Context, memberID string) ([]Post, error) {
	return s.list(ctx, `SELECT `+postColumns+` FROM posts WHERE member_id=$1 ORDER BY created_at DESC`, memberID)
}

// Public lists published posts, newest publication first.
func (s *Service) Public(ctx context.Context) ([]Post, error) {
	return s.list(ctx, `SELECT `+postColumns+` FROM posts WHERE status=$1 ORDER BY published_at DESC`, StatusPublished)
}

func (s *Service) list(ctx context.Context, query string, arg string) ([]Post, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		if db.IsNotFound(err) {
			return []Post{}, nil
		}
		return nil, apperr.Upstream(err, "could not list posts")
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Status, &p.PublishedAt, &p.MemberID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Upstream(err, "could not list posts")
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream(err, "could not list posts")
	}
	return posts, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, apperr.Upstream(err, "could not delete post")
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus moves a post between draft and published. The first
// publication stamps published_at; later transitions keep it.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	if err := validation.Struct(StatusRequest{Status: status}); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE posts
		SET status=$2,
		    published_at = CASE WHEN $4 THEN COALESCE(published_at, $3) ELSE published_at END,
		    updated_at=$3
		WHERE id=$1
	`, id, status, s.now(), status == StatusPublished)
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, apperr.Upstream(err, "could not update post status")
	}
	return tag.RowsAffected() > 0, nil
}
