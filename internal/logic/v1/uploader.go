package v1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
	"github.com/duynhne/mc-profile-service/middleware"
)

const (
	ProfileImageFolder = "profile-images"
	GalleryFolder      = "gallery"
)

// UploadedAsset is a stored object and the URL it is served from.
type UploadedAsset struct {
	Key string
	URL string
}

// AssetUploader writes profile assets to the object store under random names.
type AssetUploader struct {
	store    domain.ObjectStore
	maxBytes int64
	log      *zap.Logger
}

func NewAssetUploader(store domain.ObjectStore, maxBytes int64, log *zap.Logger) *AssetUploader {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssetUploader{store: store, maxBytes: maxBytes, log: log}
}

// Upload stores asset as folder/<uuid><ext>. There is one attempt; any store
// failure is returned as *domain.UploadError.
func (u *AssetUploader) Upload(ctx context.Context, asset domain.Asset, folder string) (UploadedAsset, error) {
	key := path.Join(folder, uuid.NewString()+strings.ToLower(path.Ext(asset.Filename)))

	ctx, span := middleware.StartSpan(ctx, "asset.upload", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("asset.key", key),
		attribute.Int("asset.bytes", len(asset.Data)),
	))
	defer span.End()

	if len(asset.Data) == 0 {
		return UploadedAsset{}, &domain.UploadError{Key: key, Cause: errors.New("empty file")}
	}
	if u.maxBytes > 0 && int64(len(asset.Data)) > u.maxBytes {
		return UploadedAsset{}, &domain.UploadError{Key: key, Cause: fmt.Errorf("file exceeds %d bytes", u.maxBytes)}
	}

	if err := u.store.Put(ctx, key, bytes.NewReader(asset.Data), asset.ContentType); err != nil {
		middleware.RecordError(span, err)
		return UploadedAsset{}, &domain.UploadError{Key: key, Cause: err}
	}

	u.log.Debug("Asset uploaded", zap.String("key", key), zap.Int("bytes", len(asset.Data)))
	return UploadedAsset{Key: key, URL: u.store.PublicURL(key)}, nil
}

// Remove deletes a previously uploaded object.
func (u *AssetUploader) Remove(ctx context.Context, key string) error {
	return u.store.Delete(ctx, key)
}

// ProfileFolder returns the folder holding one profile's assets of a kind.
func ProfileFolder(kind string, mcID uuid.UUID) string {
	return kind + "/" + mcID.String()
}

// CleanFolder validates a caller-supplied upload folder. Only the profile
// image and gallery trees are writable.
func CleanFolder(folder string) (string, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return "", &domain.ValidationError{Field: "folder", Reason: "is required"}
	}
	if strings.Contains(folder, "..") || strings.Contains(folder, "//") {
		return "", &domain.ValidationError{Field: "folder", Reason: "is invalid"}
	}
	root, _, _ := strings.Cut(folder, "/")
	if root != ProfileImageFolder && root != GalleryFolder {
		return "", &domain.ValidationError{Field: "folder", Reason: fmt.Sprintf("must be under %s or %s", ProfileImageFolder, GalleryFolder)}
	}
	return path.Clean(folder), nil
}
