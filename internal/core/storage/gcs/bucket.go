// Package gcs stores profile assets in a Google Cloud Storage bucket, or in a
// fake-gcs emulator for local development.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/duynhne/mc-profile-service/config"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

// Bucket implements domain.ObjectStore.
type Bucket struct {
	log           *zap.Logger
	client        *storage.Client
	mode          Mode
	name          string
	cdnDomain     string
	publicBaseURL string
	emulatorHost  string
}

// New creates the storage client for the configured mode.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*Bucket, error) {
	mode, err := resolveMode(cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("missing bucket name (ASSET_GCS_BUCKET_NAME)")
	}
	publicBase, err := resolvePublicBaseURL(cfg, mode)
	if err != nil {
		return nil, err
	}

	var client *storage.Client
	switch mode {
	case ModeGCSEmulator:
		// the client library reads the emulator endpoint from this variable
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		client, err = storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		opts := clientOptions(cfg.Credentials)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	log.Info("Object storage initialized",
		zap.String("mode", string(mode)),
		zap.String("bucket", cfg.Bucket),
		zap.String("public_base_url", publicBase),
		zap.String("cdn_domain", cfg.CDNDomain),
	)

	return &Bucket{
		log:           log.With(zap.String("component", "gcs_bucket")),
		client:        client,
		mode:          mode,
		name:          cfg.Bucket,
		cdnDomain:     strings.TrimSpace(cfg.CDNDomain),
		publicBaseURL: publicBase,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
	}, nil
}

func resolveMode(cfg config.StorageConfig) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(cfg.Mode))) {
	case "":
		if strings.TrimSpace(cfg.EmulatorHost) != "" {
			return ModeGCSEmulator, nil
		}
		return ModeGCS, nil
	case ModeGCS:
		return ModeGCS, nil
	case ModeGCSEmulator:
		u, err := url.Parse(strings.TrimSpace(cfg.EmulatorHost))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
		return ModeGCSEmulator, nil
	default:
		return "", fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", cfg.Mode, ModeGCS, ModeGCSEmulator)
	}
}

func resolvePublicBaseURL(cfg config.StorageConfig, mode Mode) (string, error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if mode == ModeGCSEmulator {
		return strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"), nil
	}
	return "", nil
}

func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// Put writes one object. The object only becomes visible once the writer
// closes successfully, so a failed write leaves nothing behind.
func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %q: %w", key, err)
	}
	return nil
}

// Delete removes one object; a missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := b.client.Bucket(b.name).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %q in bucket %q: %w", key, b.name, err)
	}
	return nil
}

// PublicURL resolves the URL browsers use to fetch the object.
func (b *Bucket) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", b.cdnDomain, key)
	}
	if b.mode == ModeGCSEmulator {
		base := b.publicBaseURL
		if base == "" {
			base = b.emulatorHost
		}
		if base != "" {
			return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(b.name), url.PathEscape(key))
		}
	}
	if b.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", b.publicBaseURL, b.name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".avif"):
		return "image/avif"
	case strings.HasSuffix(s, ".heic"):
		return "image/heic"
	case strings.HasSuffix(s, ".svg"):
		return "image/svg+xml"
	default:
		return ""
	}
}

// Close releases the underlying client.
func (b *Bucket) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
