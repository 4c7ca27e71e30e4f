package gcs

import (
	"testing"

	"github.com/duynhne/mc-profile-service/config"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    Mode
		wantErr bool
	}{
		{name: "default", cfg: config.StorageConfig{}, want: ModeGCS},
		{name: "emulator host implies emulator", cfg: config.StorageConfig{EmulatorHost: "http://fake-gcs:4443"}, want: ModeGCSEmulator},
		{name: "explicit gcs", cfg: config.StorageConfig{Mode: "GCS"}, want: ModeGCS},
		{name: "explicit emulator", cfg: config.StorageConfig{Mode: "gcs_emulator", EmulatorHost: "http://fake-gcs:4443"}, want: ModeGCSEmulator},
		{name: "emulator without host", cfg: config.StorageConfig{Mode: "gcs_emulator"}, wantErr: true},
		{name: "unknown mode", cfg: config.StorageConfig{Mode: "s3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveMode(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolveMode: expected error, got mode %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveMode: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resolveMode: want=%q got=%q", tt.want, got)
			}
		})
	}
}

func TestResolvePublicBaseURL(t *testing.T) {
	got, err := resolvePublicBaseURL(config.StorageConfig{PublicBaseURL: "http://localhost:4443/"}, ModeGCSEmulator)
	if err != nil || got != "http://localhost:4443" {
		t.Fatalf("override: got=%q err=%v", got, err)
	}

	got, err = resolvePublicBaseURL(config.StorageConfig{EmulatorHost: "http://fake-gcs:4443"}, ModeGCSEmulator)
	if err != nil || got != "http://fake-gcs:4443" {
		t.Fatalf("emulator fallback: got=%q err=%v", got, err)
	}

	got, err = resolvePublicBaseURL(config.StorageConfig{}, ModeGCS)
	if err != nil || got != "" {
		t.Fatalf("gcs default: got=%q err=%v", got, err)
	}

	if _, err := resolvePublicBaseURL(config.StorageConfig{PublicBaseURL: "localhost:4443"}, ModeGCS); err == nil {
		t.Fatalf("invalid override: expected error")
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name   string
		bucket *Bucket
		want   string
	}{
		{
			name:   "gcs default",
			bucket: &Bucket{mode: ModeGCS, name: "mc-assets"},
			want:   "https://storage.googleapis.com/mc-assets/gallery/abc.jpg",
		},
		{
			name:   "cdn domain wins",
			bucket: &Bucket{mode: ModeGCS, name: "mc-assets", cdnDomain: "cdn.example.com"},
			want:   "https://cdn.example.com/gallery/abc.jpg",
		},
		{
			name:   "public base url",
			bucket: &Bucket{mode: ModeGCS, name: "mc-assets", publicBaseURL: "https://assets.example.com"},
			want:   "https://assets.example.com/mc-assets/gallery/abc.jpg",
		},
		{
			name:   "emulator media url",
			bucket: &Bucket{mode: ModeGCSEmulator, name: "mc-assets", emulatorHost: "http://fake-gcs:4443"},
			want:   "http://fake-gcs:4443/storage/v1/b/mc-assets/o/gallery%2Fabc.jpg?alt=media",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bucket.PublicURL("/gallery/abc.jpg"); got != tt.want {
				t.Fatalf("PublicURL: want=%q got=%q", tt.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"gallery/a.JPG":          "image/jpeg",
		"gallery/a.jpeg":         "image/jpeg",
		"profile-images/x/b.png": "image/png",
		"gallery/c.webp?v=2":     "image/webp",
		"gallery/d":              "",
		"gallery/e.pdf":          "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Errorf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
