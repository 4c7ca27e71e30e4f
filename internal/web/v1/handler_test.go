package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
	logicv1 "github.com/duynhne/mc-profile-service/internal/logic/v1"
)

type fakeService struct {
	gotID       uuid.UUID
	gotDesired  domain.DesiredState
	gotSlug     string
	gotFeatured bool
	gotFolder   string
	gotAsset    domain.Asset

	createRes *logicv1.CreateResult
	agg       *domain.ProfileAggregate
	err       error
}

func (f *fakeService) CreateProfile(ctx context.Context, desired domain.DesiredState) (*logicv1.CreateResult, *logicv1.Report, error) {
	f.gotDesired = desired
	return f.createRes, &logicv1.Report{}, f.err
}

func (f *fakeService) UpdateProfile(ctx context.Context, id uuid.UUID, desired domain.DesiredState) (*logicv1.Report, error) {
	f.gotID, f.gotDesired = id, desired
	if f.err != nil {
		return nil, f.err
	}
	return &logicv1.Report{}, nil
}

func (f *fakeService) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	f.gotID = id
	return f.err
}

func (f *fakeService) GetProfileBySlug(ctx context.Context, slug string) (*domain.ProfileAggregate, error) {
	f.gotSlug = slug
	return f.agg, f.err
}

func (f *fakeService) ListProfiles(ctx context.Context, featuredOnly bool) ([]domain.ProfileSummary, error) {
	f.gotFeatured = featuredOnly
	return []domain.ProfileSummary{}, f.err
}

func (f *fakeService) UploadAsset(ctx context.Context, folder string, asset domain.Asset) (logicv1.UploadedAsset, error) {
	f.gotFolder, f.gotAsset = folder, asset
	if f.err != nil {
		return logicv1.UploadedAsset{}, f.err
	}
	return logicv1.UploadedAsset{Key: folder + "/x.jpg", URL: "https://cdn.test/" + folder + "/x.jpg"}, nil
}

func newRouter(svc ProfileService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewProfileHandler(svc, 1024).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestUpdateProfile_JSON(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)
	id := uuid.New()

	body := `{
		"mcId": "` + id.String() + `",
		"formData": {"name": "Anna", "slug": "anna", "email": "a@example.com", "languages": "English", "featured": true},
		"profileImageUrl": null,
		"existingPhotos": [{"url": "https://x/a.jpg", "alt_text": "A"}],
		"newPhotoUrls": ["https://x/b.jpg"],
		"packages": [{"name": "Gold", "price": 500, "inclusions": ["MC", "Games"]}],
		"videos": [{"platform": "youtube", "video_id": "dQw4w9WgXcQ"}],
		"reviews": [{"reviewer_name": "Jo", "rating": 5, "review_text": "Great"}]
	}`
	w := doJSON(r, http.MethodPut, "/api/v1/admin/profiles/"+id.String(), body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if out := decodeBody(t, w); out["success"] != true {
		t.Fatalf("unexpected body %v", out)
	}

	d := svc.gotDesired
	if svc.gotID != id || d.FormData.Featured.String() != "true" || d.Packages[0].Price.String() != "500" {
		t.Fatalf("unexpected desired state %+v", d)
	}
	if d.Packages[0].Inclusions.String() != "MC\nGames" || d.NewPhotoURLs[0] != "https://x/b.jpg" || !d.ProfileImageURL.Blank() {
		t.Fatalf("unexpected desired state %+v", d)
	}
}

func TestUpdateProfile_Multipart(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)
	id := uuid.New()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("payload", `{"formData": {"name": "Anna", "slug": "anna", "email": "a@example.com"}}`)
	for name, files := range map[string][]string{"profileImage": {"me.jpg"}, "photos": {"a.jpg", "b.png"}} {
		for _, fn := range files {
			fw, _ := mw.CreateFormFile(name, fn)
			_, _ = fw.Write([]byte("data-" + fn))
		}
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/profiles/"+id.String(), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	d := svc.gotDesired
	if d.ProfileImage == nil || string(d.ProfileImage.Data) != "data-me.jpg" {
		t.Fatalf("profile image not bound: %+v", d.ProfileImage)
	}
	if len(d.NewPhotos) != 2 || d.NewPhotos[0].Filename != "a.jpg" || d.NewPhotos[1].Filename != "b.png" {
		t.Fatalf("photos not bound in order: %+v", d.NewPhotos)
	}
	if d.FormData.Name.String() != "Anna" {
		t.Fatalf("payload not bound: %+v", d.FormData)
	}
}

func TestUpdateProfile_MultipartFileTooLarge(t *testing.T) {
	r := newRouter(&fakeService{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("payload", `{}`)
	fw, _ := mw.CreateFormFile("photos", "big.jpg")
	_, _ = fw.Write(bytes.Repeat([]byte("x"), 2048))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/profiles/"+uuid.NewString(), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestUpdateProfile_BadRequests(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid id", "/api/v1/admin/profiles/not-a-uuid", `{}`},
		{"id mismatch", "/api/v1/admin/profiles/" + id.String(), `{"mcId": "` + uuid.NewString() + `"}`},
		{"malformed json", "/api/v1/admin/profiles/" + id.String(), `{"formData": `},
		{"object for form value", "/api/v1/admin/profiles/" + id.String(), `{"formData": {"name": {"x": 1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			w := doJSON(newRouter(svc), http.MethodPut, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			if svc.gotID != uuid.Nil {
				t.Fatalf("service must not be called")
			}
		})
	}
}

func TestUpdateProfile_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"step failure", &domain.StepError{Step: domain.StepDeletePhotos, Cause: errors.New("boom")}, http.StatusInternalServerError, "Failed to delete photos: boom"},
		{"upload failure", &domain.StepError{Step: domain.StepUploadProfileImage, Cause: &domain.UploadError{Key: "k", Cause: errors.New("denied")}}, http.StatusInternalServerError, `Failed to upload profile image: upload "k": denied`},
		{"not found", &domain.StepError{Step: domain.StepUpdateProfile, Cause: domain.ErrProfileNotFound}, http.StatusNotFound, "Profile not found"},
		{"slug taken on save", &domain.StepError{Step: domain.StepUpdateProfile, Cause: domain.ErrSlugTaken}, http.StatusInternalServerError, "Failed to update profile: slug already taken"},
		{"slug taken on create", domain.ErrSlugTaken, http.StatusConflict, "Slug already taken"},
		{"busy", domain.ErrProfileBusy, http.StatusConflict, "Profile is being saved by another request"},
		{"validation", &domain.ValidationError{Field: "email", Reason: "is required"}, http.StatusBadRequest, "email is required"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			w := doJSON(newRouter(&fakeService{err: tt.err}), http.MethodPut, "/api/v1/admin/profiles/"+id.String(), `{"mcId": "`+id.String()+`"}`)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := decodeBody(t, w)["error"]; got != tt.message {
				t.Fatalf("error = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestCreateProfile(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{createRes: &logicv1.CreateResult{ID: id, Slug: "anna"}}
	w := doJSON(newRouter(svc), http.MethodPost, "/api/v1/admin/profiles", `{"formData": {"name": "Anna", "slug": "anna", "email": "a@example.com"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	if out["id"] != id.String() || out["slug"] != "anna" || out["success"] != true {
		t.Fatalf("unexpected body %v", out)
	}

	svc = &fakeService{err: domain.ErrSlugTaken}
	w = doJSON(newRouter(svc), http.MethodPost, "/api/v1/admin/profiles", `{"formData": {"name": "Anna", "slug": "anna", "email": "a@example.com"}}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d", w.Code)
	}

	svc = &fakeService{createRes: &logicv1.CreateResult{ID: id, Slug: "anna"}, err: &domain.StepError{Step: domain.StepInsertVideos, Cause: errors.New("boom")}}
	w = doJSON(newRouter(svc), http.MethodPost, "/api/v1/admin/profiles", `{}`)
	out = decodeBody(t, w)
	if w.Code != http.StatusInternalServerError || out["id"] != id.String() || out["error"] != "Failed to insert videos: boom" {
		t.Fatalf("partial create: status=%d body=%v", w.Code, out)
	}
}

func TestDeleteProfile(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{}
	w := doJSON(newRouter(svc), http.MethodDelete, "/api/v1/admin/profiles/"+id.String(), "")
	if w.Code != http.StatusOK || svc.gotID != id {
		t.Fatalf("status = %d id=%s", w.Code, svc.gotID)
	}

	w = doJSON(newRouter(&fakeService{err: domain.ErrProfileNotFound}), http.MethodDelete, "/api/v1/admin/profiles/"+id.String(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing profile status = %d", w.Code)
	}
}

func TestGetProfile(t *testing.T) {
	svc := &fakeService{agg: &domain.ProfileAggregate{Profile: domain.Profile{Slug: "anna", Name: "Anna"}}}
	w := doJSON(newRouter(svc), http.MethodGet, "/api/v1/profiles/Anna", "")
	if w.Code != http.StatusOK || svc.gotSlug != "anna" {
		t.Fatalf("status = %d slug=%q", w.Code, svc.gotSlug)
	}
	profile, _ := decodeBody(t, w)["profile"].(map[string]any)
	if profile["name"] != "Anna" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = doJSON(newRouter(&fakeService{err: domain.ErrProfileNotFound}), http.MethodGet, "/api/v1/profiles/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing profile status = %d", w.Code)
	}
}

func TestListProfiles(t *testing.T) {
	svc := &fakeService{}
	w := doJSON(newRouter(svc), http.MethodGet, "/api/v1/profiles?featured=true", "")
	if w.Code != http.StatusOK || !svc.gotFeatured {
		t.Fatalf("status = %d featured=%v", w.Code, svc.gotFeatured)
	}
}

func TestUploadAsset(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("folder", "gallery")
	fw, _ := mw.CreateFormFile("file", "a.jpg")
	_, _ = fw.Write([]byte("jpeg"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if out := decodeBody(t, w); out["url"] != "https://cdn.test/gallery/x.jpg" {
		t.Fatalf("unexpected body %v", out)
	}
	if svc.gotFolder != "gallery" || string(svc.gotAsset.Data) != "jpeg" {
		t.Fatalf("unexpected upload %q %q", svc.gotFolder, svc.gotAsset.Data)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/admin/uploads", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", w.Code)
	}
}

func TestAdminRoutesUseAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"}) }
	NewProfileHandler(&fakeService{}, 1024).RegisterRoutes(r.Group("/api/v1"), deny)

	if w := doJSON(r, http.MethodDelete, "/api/v1/admin/profiles/"+uuid.NewString(), ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("admin route status = %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/profiles", ""); w.Code != http.StatusOK {
		t.Fatalf("public route status = %d", w.Code)
	}
}
