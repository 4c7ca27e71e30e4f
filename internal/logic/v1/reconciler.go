package v1

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
	"github.com/duynhne/mc-profile-service/internal/core/lock"
	"github.com/duynhne/mc-profile-service/middleware"
)

// Report summarizes a successful or failed save.
type Report struct {
	ProfileImageURL *string     `json:"profile_image_url,omitempty"`
	Photos          int         `json:"photos"`
	Packages        int         `json:"packages"`
	Videos          int         `json:"videos"`
	Reviews         int         `json:"reviews"`
	AdditionalInfo  bool        `json:"additional_info"`
	Rejected        []Rejection `json:"rejected,omitempty"`
	UploadedKeys    []string    `json:"uploaded_keys,omitempty"`
}

// Reconciler replaces a profile aggregate with a submitted desired state.
//
// The root record is updated first, then every dependent collection is
// deleted and re-inserted in a fixed order. The first failing step stops the
// save. With a TxRunner all row writes share one transaction; without one,
// steps that completed before the failure stay applied.
type Reconciler struct {
	store           domain.ProfileStore
	tx              domain.TxRunner
	locker          domain.Locker
	uploader        *AssetUploader
	defaultLanguage string
	log             *zap.Logger
}

type ReconcilerOption func(*Reconciler)

// WithTxRunner runs every row write of a save in one transaction.
func WithTxRunner(tx domain.TxRunner) ReconcilerOption {
	return func(r *Reconciler) { r.tx = tx }
}

// WithLocker replaces the default process-local per-profile lock.
func WithLocker(l domain.Locker) ReconcilerOption {
	return func(r *Reconciler) { r.locker = l }
}

func WithDefaultLanguage(lang string) ReconcilerOption {
	return func(r *Reconciler) {
		if lang != "" {
			r.defaultLanguage = lang
		}
	}
}

func NewReconciler(store domain.ProfileStore, uploader *AssetUploader, log *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reconciler{
		store:           store,
		uploader:        uploader,
		defaultLanguage: domain.DefaultLanguage,
		log:             log.With(zap.String("component", "reconciler")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locker == nil {
		r.locker = lock.NewKeyedMutex(0)
	}
	return r
}

// DefaultLanguage is the language stored when a save names none.
func (r *Reconciler) DefaultLanguage() string { return r.defaultLanguage }

// savePlan is everything about a save that can be decided without I/O.
type savePlan struct {
	fields   domain.ProfileFields
	photos   []domain.Photo
	packages Validated[domain.Package]
	videos   Validated[domain.Video]
	reviews  Validated[domain.Review]
	info     *domain.AdditionalInfo
}

func (r *Reconciler) plan(desired domain.DesiredState) (*savePlan, error) {
	fields, err := BuildProfileFields(desired.FormData, r.defaultLanguage)
	if err != nil {
		return nil, err
	}

	photos := make([]domain.Photo, 0, len(desired.ExistingPhotos)+len(desired.NewPhotoURLs)+len(desired.NewPhotos))
	for _, p := range desired.ExistingPhotos {
		if p.URL.Blank() {
			continue
		}
		photos = append(photos, domain.Photo{URL: p.URL.Trimmed(), AltText: p.AltText.Optional()})
	}
	for _, u := range desired.NewPhotoURLs {
		if u = strings.TrimSpace(u); u != "" {
			photos = append(photos, domain.Photo{URL: u})
		}
	}

	return &savePlan{
		fields:   fields,
		photos:   photos,
		packages: ValidatePackages(desired.Packages),
		videos:   ValidateVideos(desired.Videos),
		reviews:  ValidateReviews(desired.Reviews),
		info:     NormalizeAdditionalInfo(desired.FormData),
	}, nil
}

// Reconcile applies desired to the profile mcID.
//
// Root field problems are reported as *domain.ValidationError before anything
// is written. Step failures are reported as *domain.StepError. Objects uploaded
// by a failed save that no stored row refers to are deleted again.
func (r *Reconciler) Reconcile(ctx context.Context, mcID uuid.UUID, desired domain.DesiredState) (*Report, error) {
	ctx, span := middleware.StartSpan(ctx, "profile.reconcile", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("mc.id", mcID.String()),
		attribute.Bool("reconcile.transactional", r.tx != nil),
	))
	defer span.End()

	log := r.log.With(zap.String("mc_id", mcID.String()))

	p, err := r.plan(desired)
	if err != nil {
		middleware.RecordError(span, err)
		middleware.ObserveReconcileRun("invalid")
		return nil, err
	}

	report := &Report{}
	for _, v := range [][]Rejection{p.packages.Rejected, p.videos.Rejected, p.reviews.Rejected} {
		report.Rejected = append(report.Rejected, v...)
	}
	for _, rej := range report.Rejected {
		log.Info("Dropped incomplete row",
			zap.String("kind", rej.Kind),
			zap.Int("position", rej.Position),
			zap.String("reason", rej.Reason),
		)
		middleware.ObserveRejectedRow(rej.Kind, rej.Reason)
	}

	unlock, err := r.locker.Lock(ctx, mcID.String())
	if err != nil {
		middleware.RecordError(span, err)
		middleware.ObserveReconcileRun("busy")
		return nil, err
	}
	defer unlock()

	// once started, a save runs to completion or its first failure
	ctx = context.WithoutCancel(ctx)

	run := &saveRun{
		r:       r,
		mcID:    mcID,
		desired: desired,
		plan:    p,
		report:  report,
		direct:  r.tx == nil,
		log:     log,
	}
	if err := run.execute(ctx); err != nil {
		middleware.RecordError(span, err)
		r.removeOrphans(ctx, run.pending, log)
		middleware.ObserveReconcileRun("failed")
		return report, err
	}

	middleware.ObserveReconcileRun("ok")
	log.Info("Profile saved",
		zap.Int("photos", report.Photos),
		zap.Int("packages", report.Packages),
		zap.Int("videos", report.Videos),
		zap.Int("reviews", report.Reviews),
		zap.Bool("additional_info", report.AdditionalInfo),
		zap.Int("rejected", len(report.Rejected)),
	)
	return report, nil
}

func (r *Reconciler) removeOrphans(ctx context.Context, keys []string, log *zap.Logger) {
	for _, key := range keys {
		if err := r.uploader.Remove(ctx, key); err != nil {
			middleware.ObserveOrphanCleanup("error")
			log.Warn("Failed to remove orphaned asset", zap.String("key", key), zap.Error(err))
			continue
		}
		middleware.ObserveOrphanCleanup("ok")
		log.Info("Removed orphaned asset", zap.String("key", key))
	}
}

// saveRun is the state of one Reconcile call.
type saveRun struct {
	r       *Reconciler
	mcID    uuid.UUID
	desired domain.DesiredState
	plan    *savePlan
	report  *Report
	log     *zap.Logger

	// direct is true when writes commit as they happen.
	direct bool
	// pending holds uploaded keys no committed row refers to yet.
	pending []string
}

func (s *saveRun) execute(ctx context.Context) error {
	imageURL := s.desired.ProfileImageURL.Optional()
	if s.desired.ProfileImage != nil {
		err := s.step(ctx, domain.StepUploadProfileImage, func(ctx context.Context) error {
			up, err := s.upload(ctx, *s.desired.ProfileImage, ProfileImageFolder)
			if err != nil {
				return err
			}
			imageURL = &up.URL
			return nil
		})
		if err != nil {
			return err
		}
	}
	s.plan.fields.ProfileImage = imageURL
	s.report.ProfileImageURL = imageURL

	if s.direct {
		return s.apply(ctx, s.r.store)
	}
	start := time.Now()
	err := s.r.tx.InTx(ctx, func(store domain.ProfileStore) error {
		return s.apply(ctx, store)
	})
	if _, failed := domain.FailedStep(err); err == nil || failed {
		return err
	}
	// begin or commit failed; every step inside the transaction succeeded
	middleware.ObserveReconcileStep(string(domain.StepCommit), "error", time.Since(start))
	s.log.Warn("Profile save step failed", zap.String("step", string(domain.StepCommit)), zap.Error(err))
	return &domain.StepError{Step: domain.StepCommit, Cause: err}
}

func (s *saveRun) apply(ctx context.Context, store domain.ProfileStore) error {
	id := s.mcID

	if err := s.step(ctx, domain.StepUpdateProfile, func(ctx context.Context) error {
		return store.UpdateProfile(ctx, id, s.plan.fields)
	}); err != nil {
		return err
	}
	s.settle()

	deletes := []struct {
		step domain.Step
		fn   func(context.Context, uuid.UUID) error
	}{
		{domain.StepDeletePhotos, store.DeletePhotos},
		{domain.StepDeletePackages, store.DeletePackages},
		{domain.StepDeleteVideos, store.DeleteVideos},
		{domain.StepDeleteReviews, store.DeleteReviews},
		{domain.StepDeleteAdditionalInfo, store.DeleteAdditionalInfo},
	}
	for _, d := range deletes {
		if err := s.step(ctx, d.step, func(ctx context.Context) error { return d.fn(ctx, id) }); err != nil {
			return err
		}
	}

	photos := append([]domain.Photo(nil), s.plan.photos...)
	for _, asset := range s.desired.NewPhotos {
		err := s.step(ctx, domain.StepUploadPhoto, func(ctx context.Context) error {
			up, err := s.upload(ctx, asset, GalleryFolder)
			if err != nil {
				return err
			}
			photos = append(photos, domain.Photo{URL: up.URL})
			return nil
		})
		if err != nil {
			return err
		}
	}
	for i := range photos {
		photos[i].OrderIndex = i
	}
	if err := s.step(ctx, domain.StepInsertPhotos, func(ctx context.Context) error {
		return store.InsertPhotos(ctx, id, photos)
	}); err != nil {
		return err
	}
	s.settle()

	if err := s.step(ctx, domain.StepInsertPackages, func(ctx context.Context) error {
		return store.InsertPackages(ctx, id, s.plan.packages.Accepted)
	}); err != nil {
		return err
	}
	if err := s.step(ctx, domain.StepInsertVideos, func(ctx context.Context) error {
		return store.InsertVideos(ctx, id, s.plan.videos.Accepted)
	}); err != nil {
		return err
	}
	if err := s.step(ctx, domain.StepInsertReviews, func(ctx context.Context) error {
		return store.InsertReviews(ctx, id, s.plan.reviews.Accepted)
	}); err != nil {
		return err
	}
	if s.plan.info != nil {
		if err := s.step(ctx, domain.StepInsertAdditionalInfo, func(ctx context.Context) error {
			return store.InsertAdditionalInfo(ctx, id, *s.plan.info)
		}); err != nil {
			return err
		}
	}

	s.report.Photos = len(photos)
	s.report.Packages = len(s.plan.packages.Accepted)
	s.report.Videos = len(s.plan.videos.Accepted)
	s.report.Reviews = len(s.plan.reviews.Accepted)
	s.report.AdditionalInfo = s.plan.info != nil
	return nil
}

func (s *saveRun) upload(ctx context.Context, asset domain.Asset, kind string) (UploadedAsset, error) {
	up, err := s.r.uploader.Upload(ctx, asset, ProfileFolder(kind, s.mcID))
	if err != nil {
		return UploadedAsset{}, err
	}
	s.pending = append(s.pending, up.Key)
	s.report.UploadedKeys = append(s.report.UploadedKeys, up.Key)
	return up, nil
}

// settle marks pending uploads as referenced once the write naming them has
// committed. Inside a transaction nothing commits until the end.
func (s *saveRun) settle() {
	if s.direct {
		s.pending = nil
	}
}

func (s *saveRun) step(ctx context.Context, step domain.Step, fn func(context.Context) error) error {
	ctx, span := middleware.StartSpan(ctx, "reconcile."+string(step), trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("mc.id", s.mcID.String()),
	))
	defer span.End()

	start := time.Now()
	if err := fn(ctx); err != nil {
		middleware.RecordError(span, err)
		middleware.ObserveReconcileStep(string(step), "error", time.Since(start))
		s.log.Warn("Profile save step failed", zap.String("step", string(step)), zap.Error(err))
		return &domain.StepError{Step: step, Cause: err}
	}
	middleware.ObserveReconcileStep(string(step), "ok", time.Since(start))
	return nil
}
