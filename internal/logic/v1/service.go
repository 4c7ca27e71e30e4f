package v1

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
	"github.com/duynhne/mc-profile-service/middleware"
)

const sharedReadTimeout = 10 * time.Second

// ProfileService is the business logic behind the profile HTTP API
type ProfileService struct {
	repo       domain.ProfileRepository
	reconciler *Reconciler
	uploader   *AssetUploader
	log        *zap.Logger

	reads singleflight.Group
}

// NewProfileService creates a new profile service
func NewProfileService(repo domain.ProfileRepository, reconciler *Reconciler, uploader *AssetUploader, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{
		repo:       repo,
		reconciler: reconciler,
		uploader:   uploader,
		log:        log.With(zap.String("component", "profile_service")),
	}
}

// CreateResult identifies a newly created profile.
type CreateResult struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
}

// CreateProfile inserts the root record and then saves the dependent
// collections through the reconciler. If the second part fails the profile
// exists and the result is returned together with the error.
func (s *ProfileService) CreateProfile(ctx context.Context, desired domain.DesiredState) (*CreateResult, *Report, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	fields, err := BuildProfileFields(desired.FormData, s.reconciler.DefaultLanguage())
	if err != nil {
		return nil, nil, err
	}
	fields.ProfileImage = desired.ProfileImageURL.Optional()

	id, err := s.repo.CreateProfile(ctx, fields)
	if err != nil {
		middleware.RecordError(span, err)
		return nil, nil, fmt.Errorf("create profile %q: %w", fields.Slug, err)
	}
	span.SetAttributes(attribute.String("mc.id", id.String()))

	res := &CreateResult{ID: id, Slug: fields.Slug}
	report, err := s.reconciler.Reconcile(ctx, id, desired)
	if err != nil {
		return res, report, err
	}
	return res, report, nil
}

// UpdateProfile replaces the profile aggregate with desired.
func (s *ProfileService) UpdateProfile(ctx context.Context, id uuid.UUID, desired domain.DesiredState) (*Report, error) {
	return s.reconciler.Reconcile(ctx, id, desired)
}

// DeleteProfile removes a profile; dependent rows cascade.
func (s *ProfileService) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	ctx, span := middleware.StartSpan(ctx, "profile.delete", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("mc.id", id.String()),
	))
	defer span.End()

	if err := s.repo.DeleteProfile(ctx, id); err != nil {
		middleware.RecordError(span, err)
		return err
	}
	s.log.Info("Profile deleted", zap.String("mc_id", id.String()))
	return nil
}

// GetProfileBySlug returns the full aggregate for a public profile page.
// Concurrent reads of the same slug share one database round trip.
func (s *ProfileService) GetProfileBySlug(ctx context.Context, slug string) (*domain.ProfileAggregate, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.get", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("profile.slug", slug),
	))
	defer span.End()

	// the shared fetch outlives the caller that started it
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(slug, func() (any, error) {
		ctx, cancel := context.WithTimeout(fetchCtx, sharedReadTimeout)
		defer cancel()
		id, err := s.repo.GetProfileIDBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		return s.repo.GetAggregate(ctx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("singleflight.shared", res.Shared))
		if res.Err != nil {
			middleware.RecordError(span, res.Err)
			return nil, res.Err
		}
		return res.Val.(*domain.ProfileAggregate), nil
	}
}

// ListProfiles returns directory entries, featured profiles first.
func (s *ProfileService) ListProfiles(ctx context.Context, featuredOnly bool) ([]domain.ProfileSummary, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.list", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Bool("profile.featured_only", featuredOnly),
	))
	defer span.End()

	return s.repo.ListProfiles(ctx, featuredOnly)
}

// UploadAsset stores a file ahead of a save, for form layers that upload
// first and submit the resulting URLs as newPhotoUrls.
func (s *ProfileService) UploadAsset(ctx context.Context, folder string, asset domain.Asset) (UploadedAsset, error) {
	folder, err := CleanFolder(folder)
	if err != nil {
		return UploadedAsset{}, err
	}
	return s.uploader.Upload(ctx, asset, folder)
}
