package psql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ProfileRepository implements domain.ProfileRepository using PostgreSQL
type ProfileRepository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool, q: pool}
}

// InTx runs fn against a repository bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (r *ProfileRepository) InTx(ctx context.Context, fn func(store domain.ProfileStore) error) error {
	if r.pool == nil {
		return errors.New("database connection not available")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&ProfileRepository{pool: r.pool, q: tx})
	})
}

// CreateProfile inserts a new root record and returns its id
func (r *ProfileRepository) CreateProfile(ctx context.Context, f domain.ProfileFields) (uuid.UUID, error) {
	id := uuid.New()
	query := `INSERT INTO mc_profiles (id, slug, name, email, phone, bio, website, languages, featured, profile_image, google_reviews_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query, id, f.Slug, f.Name, f.Email, f.Phone, f.Bio, f.Website,
		f.Languages, f.Featured, f.ProfileImage, f.GoogleReviewsLink)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert profile: %w", mapWriteError(err))
	}
	return id, nil
}

// UpdateProfile overwrites the root record's scalar fields
func (r *ProfileRepository) UpdateProfile(ctx context.Context, id uuid.UUID, f domain.ProfileFields) error {
	query := `UPDATE mc_profiles
		SET slug = $1, name = $2, email = $3, phone = $4, bio = $5, website = $6,
		    languages = $7, featured = $8, profile_image = $9, google_reviews_link = $10, updated_at = now()
		WHERE id = $11`
	result, err := r.q.Exec(ctx, query, f.Slug, f.Name, f.Email, f.Phone, f.Bio, f.Website,
		f.Languages, f.Featured, f.ProfileImage, f.GoogleReviewsLink, id)
	if err != nil {
		return fmt.Errorf("update profile: %w", mapWriteError(err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update profile %s: %w", id, domain.ErrProfileNotFound)
	}
	return nil
}

// DeleteProfile removes the root record; dependent rows cascade
func (r *ProfileRepository) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.Exec(ctx, `DELETE FROM mc_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete profile %s: %w", id, domain.ErrProfileNotFound)
	}
	return nil
}

func (r *ProfileRepository) deleteOwned(ctx context.Context, table string, profileID uuid.UUID) error {
	// table names come from the fixed set below, never from input
	if _, err := r.q.Exec(ctx, "DELETE FROM "+table+" WHERE mc_id = $1", profileID); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func (r *ProfileRepository) DeletePhotos(ctx context.Context, profileID uuid.UUID) error {
	return r.deleteOwned(ctx, "mc_photos", profileID)
}

func (r *ProfileRepository) DeletePackages(ctx context.Context, profileID uuid.UUID) error {
	return r.deleteOwned(ctx, "mc_packages", profileID)
}

func (r *ProfileRepository) DeleteVideos(ctx context.Context, profileID uuid.UUID) error {
	return r.deleteOwned(ctx, "mc_videos", profileID)
}

func (r *ProfileRepository) DeleteReviews(ctx context.Context, profileID uuid.UUID) error {
	return r.deleteOwned(ctx, "mc_reviews", profileID)
}

func (r *ProfileRepository) DeleteAdditionalInfo(ctx context.Context, profileID uuid.UUID) error {
	return r.deleteOwned(ctx, "mc_additional_info", profileID)
}

// execBatch sends all queued inserts in one round trip and reports the first failure.
func (r *ProfileRepository) execBatch(ctx context.Context, table string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := r.q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert into %s (row %d): %w", table, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (r *ProfileRepository) InsertPhotos(ctx context.Context, profileID uuid.UUID, photos []domain.Photo) error {
	batch := &pgx.Batch{}
	for _, p := range photos {
		batch.Queue(`INSERT INTO mc_photos (mc_id, url, alt_text, order_index) VALUES ($1, $2, $3, $4)`,
			profileID, p.URL, p.AltText, p.OrderIndex)
	}
	return r.execBatch(ctx, "mc_photos", batch)
}

func (r *ProfileRepository) InsertPackages(ctx context.Context, profileID uuid.UUID, packages []domain.Package) error {
	batch := &pgx.Batch{}
	for _, p := range packages {
		inclusions := p.Inclusions
		if inclusions == nil {
			inclusions = []string{}
		}
		batch.Queue(`INSERT INTO mc_packages (mc_id, name, price, duration, ideal_for, inclusions, popular, order_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			profileID, p.Name, p.Price, p.Duration, p.IdealFor, inclusions, p.Popular, p.OrderIndex)
	}
	return r.execBatch(ctx, "mc_packages", batch)
}

func (r *ProfileRepository) InsertVideos(ctx context.Context, profileID uuid.UUID, videos []domain.Video) error {
	batch := &pgx.Batch{}
	for _, v := range videos {
		batch.Queue(`INSERT INTO mc_videos (mc_id, platform, video_id, title, order_index) VALUES ($1, $2, $3, $4, $5)`,
			profileID, string(v.Platform), v.VideoID, v.Title, v.OrderIndex)
	}
	return r.execBatch(ctx, "mc_videos", batch)
}

func (r *ProfileRepository) InsertReviews(ctx context.Context, profileID uuid.UUID, reviews []domain.Review) error {
	batch := &pgx.Batch{}
	for _, rv := range reviews {
		batch.Queue(`INSERT INTO mc_reviews (mc_id, reviewer_name, rating, review_text, review_date, order_index)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			profileID, rv.ReviewerName, rv.Rating, rv.ReviewText, rv.ReviewDate, rv.OrderIndex)
	}
	return r.execBatch(ctx, "mc_reviews", batch)
}

func (r *ProfileRepository) InsertAdditionalInfo(ctx context.Context, profileID uuid.UUID, info domain.AdditionalInfo) error {
	query := `INSERT INTO mc_additional_info (mc_id, response_time, booking_deposit, cancellation_policy) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.Exec(ctx, query, profileID, info.ResponseTime, info.BookingDeposit, info.CancellationPolicy); err != nil {
		return fmt.Errorf("insert into mc_additional_info: %w", err)
	}
	return nil
}

// GetProfileIDBySlug resolves the natural key to the profile id
func (r *ProfileRepository) GetProfileIDBySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT id FROM mc_profiles WHERE slug = $1`, slug).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("profile %q: %w", slug, domain.ErrProfileNotFound)
		}
		return uuid.Nil, fmt.Errorf("query profile id: %w", err)
	}
	return id, nil
}

// GetAggregate loads a profile with all dependent collections in display order
func (r *ProfileRepository) GetAggregate(ctx context.Context, id uuid.UUID) (*domain.ProfileAggregate, error) {
	agg := &domain.ProfileAggregate{}
	p := &agg.Profile

	query := `SELECT id, slug, name, email, phone, bio, website, languages, featured, profile_image, google_reviews_link, created_at, updated_at
		FROM mc_profiles WHERE id = $1`
	err := r.q.QueryRow(ctx, query, id).Scan(&p.ID, &p.Slug, &p.Name, &p.Email, &p.Phone, &p.Bio, &p.Website,
		&p.Languages, &p.Featured, &p.ProfileImage, &p.GoogleReviewsLink, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, domain.ErrProfileNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}

	if agg.Photos, err = r.listPhotos(ctx, id); err != nil {
		return nil, err
	}
	if agg.Packages, err = r.listPackages(ctx, id); err != nil {
		return nil, err
	}
	if agg.Videos, err = r.listVideos(ctx, id); err != nil {
		return nil, err
	}
	if agg.Reviews, err = r.listReviews(ctx, id); err != nil {
		return nil, err
	}
	if agg.AdditionalInfo, err = r.getAdditionalInfo(ctx, id); err != nil {
		return nil, err
	}
	return agg, nil
}

func (r *ProfileRepository) listPhotos(ctx context.Context, id uuid.UUID) ([]domain.Photo, error) {
	rows, err := r.q.Query(ctx, `SELECT url, alt_text, order_index FROM mc_photos WHERE mc_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	photos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Photo, error) {
		var p domain.Photo
		err := row.Scan(&p.URL, &p.AltText, &p.OrderIndex)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan photos: %w", err)
	}
	return photos, nil
}

func (r *ProfileRepository) listPackages(ctx context.Context, id uuid.UUID) ([]domain.Package, error) {
	rows, err := r.q.Query(ctx, `SELECT name, price, duration, ideal_for, inclusions, popular, order_index
		FROM mc_packages WHERE mc_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	packages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Package, error) {
		var p domain.Package
		err := row.Scan(&p.Name, &p.Price, &p.Duration, &p.IdealFor, &p.Inclusions, &p.Popular, &p.OrderIndex)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan packages: %w", err)
	}
	return packages, nil
}

func (r *ProfileRepository) listVideos(ctx context.Context, id uuid.UUID) ([]domain.Video, error) {
	rows, err := r.q.Query(ctx, `SELECT platform, video_id, title, order_index FROM mc_videos WHERE mc_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	videos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Video, error) {
		var v domain.Video
		var platform string
		err := row.Scan(&platform, &v.VideoID, &v.Title, &v.OrderIndex)
		v.Platform = domain.VideoPlatform(platform)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan videos: %w", err)
	}
	return videos, nil
}

func (r *ProfileRepository) listReviews(ctx context.Context, id uuid.UUID) ([]domain.Review, error) {
	rows, err := r.q.Query(ctx, `SELECT reviewer_name, rating, review_text, review_date, order_index
		FROM mc_reviews WHERE mc_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Review, error) {
		var rv domain.Review
		err := row.Scan(&rv.ReviewerName, &rv.Rating, &rv.ReviewText, &rv.ReviewDate, &rv.OrderIndex)
		return rv, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reviews: %w", err)
	}
	return reviews, nil
}

func (r *ProfileRepository) getAdditionalInfo(ctx context.Context, id uuid.UUID) (*domain.AdditionalInfo, error) {
	var info domain.AdditionalInfo
	err := r.q.QueryRow(ctx, `SELECT response_time, booking_deposit, cancellation_policy FROM mc_additional_info WHERE mc_id = $1`, id).
		Scan(&info.ResponseTime, &info.BookingDeposit, &info.CancellationPolicy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query additional info: %w", err)
	}
	return &info, nil
}

// ListProfiles returns directory entries, featured profiles first
func (r *ProfileRepository) ListProfiles(ctx context.Context, featuredOnly bool) ([]domain.ProfileSummary, error) {
	query := `SELECT id, slug, name, languages, featured, profile_image FROM mc_profiles
		WHERE ($1 = FALSE OR featured) ORDER BY featured DESC, name`
	rows, err := r.q.Query(ctx, query, featuredOnly)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProfileSummary, error) {
		var s domain.ProfileSummary
		err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.Languages, &s.Featured, &s.ProfileImage)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	return out, nil
}

const slugConstraint = "mc_profiles_slug_key"

// mapWriteError turns a slug unique violation into domain.ErrSlugTaken.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == slugConstraint {
		return fmt.Errorf("%w (%s)", domain.ErrSlugTaken, pgErr.ConstraintName)
	}
	return err
}
