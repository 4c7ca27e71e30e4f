package v1

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

// recorder is shared by a memStore and every transaction clone of it.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
}

func (r *recorder) hit(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.failOn[name]
}

func (r *recorder) fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn == nil {
		r.failOn = map[string]error{}
	}
	r.failOn[name] = err
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.failOn = nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// memStore is an in-memory domain.ProfileRepository and domain.TxRunner.
type memStore struct {
	rec *recorder

	// readEntered and readGate, when set, hold GetAggregate until the gate
	// closes or its context ends.
	readEntered chan struct{}
	readGate    chan struct{}

	mu       sync.Mutex
	profiles map[uuid.UUID]domain.Profile
	photos   map[uuid.UUID][]domain.Photo
	packages map[uuid.UUID][]domain.Package
	videos   map[uuid.UUID][]domain.Video
	reviews  map[uuid.UUID][]domain.Review
	info     map[uuid.UUID]domain.AdditionalInfo
}

func newMemStore() *memStore {
	return &memStore{
		rec:      &recorder{},
		profiles: map[uuid.UUID]domain.Profile{},
		photos:   map[uuid.UUID][]domain.Photo{},
		packages: map[uuid.UUID][]domain.Package{},
		videos:   map[uuid.UUID][]domain.Video{},
		reviews:  map[uuid.UUID][]domain.Review{},
		info:     map[uuid.UUID]domain.AdditionalInfo{},
	}
}

func (s *memStore) clone() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := newMemStore()
	c.rec = s.rec
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.photos {
		c.photos[k] = slices.Clone(v)
	}
	for k, v := range s.packages {
		c.packages[k] = slices.Clone(v)
	}
	for k, v := range s.videos {
		c.videos[k] = slices.Clone(v)
	}
	for k, v := range s.reviews {
		c.reviews[k] = slices.Clone(v)
	}
	for k, v := range s.info {
		c.info[k] = v
	}
	return c
}

func (s *memStore) InTx(ctx context.Context, fn func(store domain.ProfileStore) error) error {
	tx := s.clone()
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.rec.hit("Commit"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles, s.photos, s.packages, s.videos, s.reviews, s.info =
		tx.profiles, tx.photos, tx.packages, tx.videos, tx.reviews, tx.info
	return nil
}

func (s *memStore) seed(slug string) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = domain.Profile{ID: id, Slug: slug, Name: "Seed", Email: "seed@example.com", Languages: []string{"English"}}
	s.photos[id] = []domain.Photo{{URL: "https://old/photo.jpg"}}
	s.packages[id] = []domain.Package{{Name: "Old", Price: 1}}
	s.videos[id] = []domain.Video{{Platform: domain.VideoPlatformYouTube, VideoID: "oldvideo01"}}
	s.reviews[id] = []domain.Review{{ReviewerName: "Old", Rating: 3, ReviewText: "old"}}
	note := "old"
	s.info[id] = domain.AdditionalInfo{ResponseTime: &note}
	return id
}

func (s *memStore) CreateProfile(ctx context.Context, f domain.ProfileFields) (uuid.UUID, error) {
	if err := s.rec.hit("CreateProfile"); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.Slug == f.Slug {
			return uuid.Nil, fmt.Errorf("insert profile: %w", domain.ErrSlugTaken)
		}
	}
	id := uuid.New()
	s.profiles[id] = profileFrom(id, f)
	return id, nil
}

func (s *memStore) UpdateProfile(ctx context.Context, id uuid.UUID, f domain.ProfileFields) error {
	if err := s.rec.hit("UpdateProfile"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return domain.ErrProfileNotFound
	}
	for oid, p := range s.profiles {
		if oid != id && p.Slug == f.Slug {
			return fmt.Errorf("update profile: %w", domain.ErrSlugTaken)
		}
	}
	s.profiles[id] = profileFrom(id, f)
	return nil
}

func profileFrom(id uuid.UUID, f domain.ProfileFields) domain.Profile {
	return domain.Profile{
		ID: id, Slug: f.Slug, Name: f.Name, Email: f.Email, Phone: f.Phone, Bio: f.Bio,
		Website: f.Website, Languages: f.Languages, Featured: f.Featured,
		ProfileImage: f.ProfileImage, GoogleReviewsLink: f.GoogleReviewsLink, UpdatedAt: time.Now(),
	}
}

func (s *memStore) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	if err := s.rec.hit("DeleteProfile"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return domain.ErrProfileNotFound
	}
	delete(s.profiles, id)
	delete(s.photos, id)
	delete(s.packages, id)
	delete(s.videos, id)
	delete(s.reviews, id)
	delete(s.info, id)
	return nil
}

func (s *memStore) DeletePhotos(ctx context.Context, id uuid.UUID) error {
	return s.mutate("DeletePhotos", func() { delete(s.photos, id) })
}

func (s *memStore) DeletePackages(ctx context.Context, id uuid.UUID) error {
	return s.mutate("DeletePackages", func() { delete(s.packages, id) })
}

func (s *memStore) DeleteVideos(ctx context.Context, id uuid.UUID) error {
	return s.mutate("DeleteVideos", func() { delete(s.videos, id) })
}

func (s *memStore) DeleteReviews(ctx context.Context, id uuid.UUID) error {
	return s.mutate("DeleteReviews", func() { delete(s.reviews, id) })
}

func (s *memStore) DeleteAdditionalInfo(ctx context.Context, id uuid.UUID) error {
	return s.mutate("DeleteAdditionalInfo", func() { delete(s.info, id) })
}

func (s *memStore) InsertPhotos(ctx context.Context, id uuid.UUID, photos []domain.Photo) error {
	return s.mutate("InsertPhotos", func() { s.photos[id] = append(s.photos[id], photos...) })
}

func (s *memStore) InsertPackages(ctx context.Context, id uuid.UUID, packages []domain.Package) error {
	return s.mutate("InsertPackages", func() { s.packages[id] = append(s.packages[id], packages...) })
}

func (s *memStore) InsertVideos(ctx context.Context, id uuid.UUID, videos []domain.Video) error {
	return s.mutate("InsertVideos", func() { s.videos[id] = append(s.videos[id], videos...) })
}

func (s *memStore) InsertReviews(ctx context.Context, id uuid.UUID, reviews []domain.Review) error {
	return s.mutate("InsertReviews", func() { s.reviews[id] = append(s.reviews[id], reviews...) })
}

func (s *memStore) InsertAdditionalInfo(ctx context.Context, id uuid.UUID, info domain.AdditionalInfo) error {
	return s.mutate("InsertAdditionalInfo", func() { s.info[id] = info })
}

func (s *memStore) mutate(name string, fn func()) error {
	if err := s.rec.hit(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	return nil
}

func (s *memStore) GetProfileIDBySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	if err := s.rec.hit("GetProfileIDBySlug"); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if p.Slug == slug {
			return id, nil
		}
	}
	return uuid.Nil, domain.ErrProfileNotFound
}

func (s *memStore) GetAggregate(ctx context.Context, id uuid.UUID) (*domain.ProfileAggregate, error) {
	if err := s.rec.hit("GetAggregate"); err != nil {
		return nil, err
	}
	if s.readGate != nil {
		if s.readEntered != nil {
			s.readEntered <- struct{}{}
		}
		select {
		case <-s.readGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	agg := &domain.ProfileAggregate{
		Profile:  p,
		Photos:   slices.Clone(s.photos[id]),
		Packages: slices.Clone(s.packages[id]),
		Videos:   slices.Clone(s.videos[id]),
		Reviews:  slices.Clone(s.reviews[id]),
	}
	if info, ok := s.info[id]; ok {
		agg.AdditionalInfo = &info
	}
	return agg, nil
}

func (s *memStore) ListProfiles(ctx context.Context, featuredOnly bool) ([]domain.ProfileSummary, error) {
	if err := s.rec.hit("ListProfiles"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.ProfileSummary{}
	for _, p := range s.profiles {
		if featuredOnly && !p.Featured {
			continue
		}
		out = append(out, domain.ProfileSummary{ID: p.ID, Slug: p.Slug, Name: p.Name, Languages: p.Languages, Featured: p.Featured})
	}
	slices.SortFunc(out, func(a, b domain.ProfileSummary) int {
		if a.Featured != b.Featured {
			if a.Featured {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// memBucket is an in-memory domain.ObjectStore.
type memBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	deleted   []string
	putErr    error
	failAfter int // fail every Put once this many have succeeded; <0 disables
	puts      int
	deleteErr error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}, failAfter: -1}
}

func (b *memBucket) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil && (b.failAfter < 0 || b.puts >= b.failAfter) {
		return b.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	b.objects[key] = buf.Bytes()
	b.types[key] = contentType
	b.puts++
	return nil
}

func (b *memBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBucket) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (b *memBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// spyLocker records lock use and can refuse every lock.
type spyLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	locks    int
	unlocks  int
	busy     bool
	overlaps int
}

func (l *spyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy {
		return nil, domain.ErrProfileBusy
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		l.overlaps++
	}
	l.held[key] = true
	l.locks++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held[key] = false
		l.unlocks++
	}, nil
}

var errBoom = errors.New("boom")
