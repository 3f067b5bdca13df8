package member

import (
	"context"
	"time"

	"backend-dailyrecord/internal/auth"
	"backend-dailyrecord/internal/db"
	"backend-dailyrecord/internal/logging"
	"backend-dailyrecord/internal/metrics"
	"backend-dailyrecord/internal/shared/apperr"
	"backend-dailyrecord/internal/validation"

	"github.com/google/uuid"
)

const memberColumns = `id, username, email, password_hash, is_active, created_at, updated_at`

type Service struct {
	db     db.Querier
	codec  *auth.Codec
	hasher *auth.Hasher
	now    func() time.Time
}

func NewService(db db.Querier, codec *auth.Codec, hasher *auth.Hasher) *Service {
	return &Service{
		db:     db,
		codec:  codec,
		hasher: hasher,
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Member, error) {
	if err := validation.Struct(req); err != nil {
		return Member{}, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Member{}, apperr.Upstream(err, "could not hash password")
	}

	m := Member{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO members (id, username, email, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING is_active, created_at, updated_at
	`, m.ID, m.Username, m.Email, m.PasswordHash)
	if err := row.Scan(&m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Member{}, apperr.Conflict("email %s is already registered", req.Email)
		}
		return Member{}, apperr.Upstream(err, "could not create member")
	}

	metrics.AuthEvents.WithLabelValues("register").Inc()
	logging.Info().Str("member_id", m.ID).Str("email", m.Email).Msg("member registered")
	return m, nil
}

// Login checks the credentials and returns a fresh session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	m, err := s.FindByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.AuthEvents.WithLabelValues("login_unknown").Inc()
			logging.Warn().Str("email", email).Msg("login for unknown member")
		}
		return "", err
	}
	if err := s.hasher.Compare(m.PasswordHash, password); err != nil {
		metrics.AuthEvents.WithLabelValues("login_rejected").Inc()
		logging.Warn().Str("email", email).Msg("invalid password")
		return "", apperr.Unauthenticated("invalid credentials")
	}
	if !m.IsActive {
		return "", apperr.Forbidden("member is deactivated")
	}

	token, err := s.codec.Issue(m.Email, s.now())
	if err != nil {
		return "", apperr.Upstream(err, "could not issue token")
	}
	metrics.AuthEvents.WithLabelValues("login").Inc()
	logging.Info().Str("member_id", m.ID).Msg("login successful")
	return token, nil
}

// UpdateProfile lets a member modify only their own record. callerToken is
// the raw token without any scheme prefix.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfilePatch, callerToken string) (Member, error) {
	if !s.codec.Validate(callerToken) {
		return Member{}, apperr.Unauthenticated("invalid token")
	}
	subject, err := s.codec.SubjectOf(callerToken)
	if err != nil {
		return Member{}, apperr.Unauthenticated("invalid token")
	}
	if err := validation.Struct(patch); err != nil {
		return Member{}, err
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return Member{}, err
	}
	if m.Email != subject {
		logging.Warn().Str("member_id", id).Str("caller", subject).Msg("profile update by non-owner")
		return Member{}, apperr.Forbidden("not allowed to modify another member")
	}

	if patch.Username != "" {
		m.Username = patch.Username
	}
	if patch.Email != "" {
		m.Email = patch.Email
	}
	if patch.Password != "" {
		hash, err := s.hasher.Hash(patch.Password)
		if err != nil {
			return Member{}, apperr.Upstream(err, "could not hash password")
		}
		m.PasswordHash = hash
	}
	m.UpdatedAt = s.now()

	_, err = s.db.Exec(ctx, `
		UPDATE members
		SET username=$2, email=$3, password_hash=$4, updated_at=$5
		WHERE id=$1
	`, m.ID, m.Username, m.Email, m.PasswordHash, m.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Member{}, apperr.Conflict("email %s is already registered", m.Email)
		}
		return Member{}, apperr.Upstream(err, "could not update member")
	}
	return m, nil
}

// Deactivate and Reactivate carry no ownership check; they are treated as
// administrative operations.
func (s *Service) Deactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Reactivate(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE members SET is_active=$2, updated_at=$3 WHERE id=$1
	`, id, active, s.now())
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, apperr.Upstream(err, "could not update member")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	logging.Info().Str("member_id", id).Bool("active", active).Msg("member activation changed")
	return true, nil
}

func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id=$1`, id)
}

func (s *Service) FindByEmail(ctx context.Context, email string) (Member, error) {
	return s.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE email=$1`, email)
}

func (s *Service) FindByUsername(ctx context.Context, username string) (Member, error) {
	return s.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE username=$1 ORDER BY created_at LIMIT 1`, username)
}

func (s *Service) findOne(ctx context.Context, query string, arg string) (Member, error) {
	var m Member
	err := s.db.QueryRow(ctx, query, arg).
		Scan(&m.ID, &m.Username, &m.Email, &m.PasswordHash, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return Member{}, apperr.NotFound("member not found")
		}
		return Member{}, apperr.Upstream(err, "could not load member")
	}
	return m, nil
}
