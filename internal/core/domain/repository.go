package domain

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// ProfileStore is the relational store seen by one save. Every dependent
// collection is keyed by the owning profile id.
type ProfileStore interface {
	UpdateProfile(ctx context.Context, id uuid.UUID, fields ProfileFields) error

	DeletePhotos(ctx context.Context, profileID uuid.UUID) error
	DeletePackages(ctx context.Context, profileID uuid.UUID) error
	DeleteVideos(ctx context.Context, profileID uuid.UUID) error
	DeleteReviews(ctx context.Context, profileID uuid.UUID) error
	DeleteAdditionalInfo(ctx context.Context, profileID uuid.UUID) error

	InsertPhotos(ctx context.Context, profileID uuid.UUID, photos []Photo) error
	InsertPackages(ctx context.Context, profileID uuid.UUID, packages []Package) error
	InsertVideos(ctx context.Context, profileID uuid.UUID, videos []Video) error
	InsertReviews(ctx context.Context, profileID uuid.UUID, reviews []Review) error
	InsertAdditionalInfo(ctx context.Context, profileID uuid.UUID, info AdditionalInfo) error
}

// ProfileRepository adds the create/read/delete paths to ProfileStore.
type ProfileRepository interface {
	ProfileStore

	CreateProfile(ctx context.Context, fields ProfileFields) (uuid.UUID, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
	GetProfileIDBySlug(ctx context.Context, slug string) (uuid.UUID, error)
	GetAggregate(ctx context.Context, id uuid.UUID) (*ProfileAggregate, error)
	ListProfiles(ctx context.Context, featuredOnly bool) ([]ProfileSummary, error)
}

// TxRunner runs fn against a store whose writes commit together or not at all.
type TxRunner interface {
	InTx(ctx context.Context, fn func(store ProfileStore) error) error
}

// ObjectStore is the asset bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Locker serializes saves of the same profile.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
