package photo

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"backend-dailyrecord/internal/db"
	"backend-dailyrecord/internal/logging"
	"backend-dailyrecord/internal/metrics"
	"backend-dailyrecord/internal/shared/apperr"
	"backend-dailyrecord/internal/shared/geo"
	"backend-dailyrecord/internal/storage"
	"backend-dailyrecord/internal/stream"
	"backend-dailyrecord/internal/validation"

	"github.com/google/uuid"
)

const (
	photoColumns    = `id, file_name, file_size, latitude, longitude, taken_at, member_id, post_id, created_at, updated_at`
	analysisColumns = `id, caption, story, photo_id, created_at, updated_at`

	analysisConstraint = "ai_generated_data_photo_id_key"
	maxRadiusKm        = 1000
)

type Enricher interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Publisher interface {
	Publish(ev stream.Event)
}

type Service struct {
	db       db.Querier
	store    *storage.Local
	enricher Enricher
	locker   Locker
	events   Publisher
	extract  func(path string) Metadata
	now      func() time.Time
}

// NewService wires the photo pipeline. events may be nil.
func NewService(db db.Querier, store *storage.Local, enricher Enricher, locker Locker, events Publisher) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		db:       db,
		store:    store,
		enricher: enricher,
		locker:   locker,
		events:   events,
		extract:  Extract,
		now:      time.Now,
	}
}

// Upload stores the file, reads its EXIF metadata and records the photo.
// The stored file is removed again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Photo, error) {
	if in.File == nil {
		return Photo{}, apperr.Validation("file is required")
	}
	if strings.TrimSpace(in.MemberID) == "" {
		return Photo{}, apperr.Validation("memberId is required")
	}

	if err := s.ensureExists(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id=$1)`, in.MemberID, "member"); err != nil {
		s.countUpload(err)
		return Photo{}, err
	}
	var postID *string
	if in.PostID != "" {
		if err := s.ensureExists(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id=$1)`, in.PostID, "post"); err != nil {
			s.countUpload(err)
			return Photo{}, err
		}
		postID = &in.PostID
	}

	key := storage.NewKey(in.OriginalName)
	size, err := s.store.Save(key, in.File)
	if err != nil {
		metrics.PhotoUploads.WithLabelValues("storage_error").Inc()
		return Photo{}, apperr.Upstream(err, "could not store file")
	}

	p := Photo{
		ID:       uuid.NewString(),
		FileName: key,
		FileSize: size,
		MemberID: in.MemberID,
		PostID:   postID,
	}
	if path, err := s.store.Path(key); err == nil {
		meta := s.extract(path)
		p.TakenAt, p.Latitude, p.Longitude = meta.TakenAt, meta.Latitude, meta.Longitude
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO photos (id, file_name, file_size, latitude, longitude, taken_at, member_id, post_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, p.ID, p.FileName, p.FileSize, p.Latitude, p.Longitude, p.TakenAt, p.MemberID, p.PostID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if rmErr := s.store.Remove(key); rmErr != nil {
			logging.Error().Err(rmErr).Str("file", key).Msg("remove orphaned upload")
		}
		if db.IsForeignKeyViolation(err) {
			err = apperr.NotFound("member or post not found")
		} else {
			err = apperr.Upstream(err, "could not save photo")
		}
		s.countUpload(err)
		return Photo{}, err
	}

	metrics.PhotoUploads.WithLabelValues("ok").Inc()
	logging.Info().Str("photo_id", p.ID).Str("member_id", p.MemberID).Bool("gps", p.Latitude != nil).Msg("photo uploaded")
	s.publish(stream.EventPhotoUploaded, p)
	return p, nil
}

// Analyze asks the enrichment service for a story about the photo. A photo
// is analysed at most once.
func (s *Service) Analyze(ctx context.Context, photoID string, actx AnalysisContext) (Analysis, error) {
	if err := validation.Struct(actx); err != nil {
		return Analysis{}, err
	}
	p, err := s.loadPhoto(ctx, photoID)
	if err != nil {
		s.countAnalysis(err)
		return Analysis{}, err
	}

	release, err := s.locker.Acquire(ctx, photoID)
	if err != nil {
		s.countAnalysis(err)
		return Analysis{}, err
	}
	defer release()

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ai_generated_data WHERE photo_id=$1)`, photoID).Scan(&exists)
	if err != nil {
		return Analysis{}, apperr.Upstream(err, "could not check analysis")
	}
	if exists {
		err := apperr.Conflict("analysis already exists for this photo")
		s.countAnalysis(err)
		return Analysis{}, err
	}

	story, err := s.enricher.Complete(ctx, BuildPrompt(p, actx))
	if err != nil {
		err := apperr.Upstream(err, "photo analysis failed")
		s.countAnalysis(err)
		return Analysis{}, err
	}

	a := Analysis{
		ID:      uuid.NewString(),
		Caption: actx.Caption(),
		Story:   story,
		PhotoID: photoID,
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO ai_generated_data (id, caption, story, photo_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`, a.ID, a.Caption, a.Story, a.PhotoID).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, analysisConstraint) {
			err = apperr.Conflict("analysis already exists for this photo")
		} else {
			err = apperr.Upstream(err, "could not save analysis")
		}
		s.countAnalysis(err)
		return Analysis{}, err
	}

	metrics.PhotoAnalyses.WithLabelValues("ok").Inc()
	logging.Info().Str("photo_id", photoID).Msg("photo analysed")
	s.publish(stream.EventPhotoAnalyzed, p)
	return a, nil
}

// UpdateStory overwrites the story of an existing analysis. It reports false
// when the photo has none.
func (s *Service) UpdateStory(ctx context.Context, photoID, story string) (bool, error) {
	if strings.TrimSpace(story) == "" {
		return false, apperr.Validation("story is required")
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE ai_generated_data SET story=$2, updated_at=$3 WHERE photo_id=$1
	`, photoID, story, s.now())
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, apperr.Upstream(err, "could not update story")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Service) Get(ctx context.Context, photoID string) (PhotoDetail, error) {
	p, err := s.loadPhoto(ctx, photoID)
	if err != nil {
		return PhotoDetail{}, err
	}

	detail := PhotoDetail{Photo: p}
	var a Analysis
	err = s.db.QueryRow(ctx, `SELECT `+analysisColumns+` FROM ai_generated_data WHERE photo_id=$1`, photoID).
		Scan(&a.ID, &a.Caption, &a.Story, &a.PhotoID, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		detail.Analysis = &a
	case db.IsNoRows(err):
	default:
		return PhotoDetail{}, apperr.Upstream(err, "could not load analysis")
	}
	return detail, nil
}

// Nearby returns geotagged photos within radiusKm of the point, closest
// first. memberID narrows the search when set.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, memberID string) ([]NearbyPhoto, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return nil, apperr.Validation("lat/lng out of range")
	}
	if radiusKm <= 0 || radiusKm > maxRadiusKm {
		return nil, apperr.Validation("radiusKm must be between 0 and %d", maxRadiusKm)
	}

	minLat, maxLat, minLng, maxLng := boundingBox(lat, lng, radiusKm)
	query := `SELECT ` + photoColumns + ` FROM photos
		WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`
	args := []any{minLat, maxLat, minLng, maxLng}
	if memberID != "" {
		query += ` AND member_id=$5`
		args = append(args, memberID)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		if db.IsNotFound(err) {
			return []NearbyPhoto{}, nil
		}
		return nil, apperr.Upstream(err, "could not search photos")
	}
	defer rows.Close()

	out := []NearbyPhoto{}
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.FileName, &p.FileSize, &p.Latitude, &p.Longitude, &p.TakenAt,
			&p.MemberID, &p.PostID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Upstream(err, "could not search photos")
		}
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		d := geo.HaversineKm(lat, lng, *p.Latitude, *p.Longitude)
		if d <= radiusKm {
			out = append(out, NearbyPhoto{Photo: p, DistanceKm: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream(err, "could not search photos")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func (s *Service) loadPhoto(ctx context.Context, photoID string) (Photo, error) {
	var p Photo
	err := s.db.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id=$1`, photoID).
		Scan(&p.ID, &p.FileName, &p.FileSize, &p.Latitude, &p.Longitude, &p.TakenAt,
			&p.MemberID, &p.PostID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return Photo{}, apperr.NotFound("photo not found")
		}
		return Photo{}, apperr.Upstream(err, "could not load photo")
	}
	return p, nil
}

func (s *Service) ensureExists(ctx context.Context, query, id, what string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		if db.IsNotFound(err) {
			return apperr.NotFound("%s not found", what)
		}
		return apperr.Upstream(err, "could not look up "+what)
	}
	if !exists {
		return apperr.NotFound("%s not found", what)
	}
	return nil
}

func (s *Service) publish(kind string, p Photo) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.Event{
		Type:     kind,
		MemberID: p.MemberID,
		PhotoID:  p.ID,
		FileName: p.FileName,
		At:       s.now().UTC(),
	})
}

func (s *Service) countUpload(err error) {
	metrics.PhotoUploads.WithLabelValues(resultLabel(err)).Inc()
}

func (s *Service) countAnalysis(err error) {
	metrics.PhotoAnalyses.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindConflict:
		return "conflict"
	case apperr.KindValidation:
		return "invalid"
	default:
		return "error"
	}
}

// boundingBox over-approximates the search circle so the database can
// prefilter; exact distance is checked afterwards.
func boundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	const kmPerDegree = 111.32
	dLat := radiusKm / kmPerDegree
	minLat, maxLat = math.Max(lat-dLat, -90), math.Min(lat+dLat, 90)

	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 || minLat <= -90 || maxLat >= 90 {
		return minLat, maxLat, -180, 180
	}
	dLng := radiusKm / (kmPerDegree * cos)
	minLng, maxLng = lng-dLng, lng+dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}
