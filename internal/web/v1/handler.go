package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
	logicv1 "github.com/duynhne/mc-profile-service/internal/logic/v1"
	"github.com/duynhne/mc-profile-service/middleware"
)

// ProfileService is the logic the handlers depend on; *logicv1.ProfileService implements it.
type ProfileService interface {
	CreateProfile(ctx context.Context, desired domain.DesiredState) (*logicv1.CreateResult, *logicv1.Report, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, desired domain.DesiredState) (*logicv1.Report, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
	GetProfileBySlug(ctx context.Context, slug string) (*domain.ProfileAggregate, error)
	ListProfiles(ctx context.Context, featuredOnly bool) ([]domain.ProfileSummary, error)
	UploadAsset(ctx context.Context, folder string, asset domain.Asset) (logicv1.UploadedAsset, error)
}

var (
	errFileTooLarge = errors.New("file too large")
	errEmptyFile    = errors.New("file is empty")
)

// ProfileHandler handles HTTP requests for MC profiles
type ProfileHandler struct {
	service        ProfileService
	maxUploadBytes int64
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(service ProfileService, maxUploadBytes int64) *ProfileHandler {
	return &ProfileHandler{service: service, maxUploadBytes: maxUploadBytes}
}

func startSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
}

// UpdateProfile handles PUT /api/v1/admin/profiles/:mcId
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	log := middleware.GetLoggerFromGinContext(c)

	id, err := uuid.Parse(c.Param("mcId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile id"})
		return
	}
	span.SetAttributes(attribute.String("mc.id", id.String()))

	desired, ok := h.bindDesiredState(c, span, log)
	if !ok {
		return
	}
	if desired.MCID != "" && !strings.EqualFold(desired.MCID, id.String()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mcId does not match the request path"})
		return
	}

	report, err := h.service.UpdateProfile(ctx, id, desired)
	if err != nil {
		middleware.RecordError(span, err)
		log.Error("Failed to save profile", zap.String("mc_id", id.String()), zap.Error(err))
		writeError(c, err)
		return
	}

	log.Info("Profile saved",
		zap.String("mc_id", id.String()),
		zap.Int("rejected_rows", len(report.Rejected)),
		zap.Int("uploads", len(report.UploadedKeys)),
	)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateProfile handles POST /api/v1/admin/profiles
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	log := middleware.GetLoggerFromGinContext(c)

	desired, ok := h.bindDesiredState(c, span, log)
	if !ok {
		return
	}

	res, _, err := h.service.CreateProfile(ctx, desired)
	if err != nil {
		middleware.RecordError(span, err)
		log.Error("Failed to create profile", zap.Error(err))
		if res != nil {
			// the root exists; the editor can retry the save against it
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "id": res.ID, "slug": res.Slug})
			return
		}
		writeError(c, err)
		return
	}

	log.Info("Profile created", zap.String("mc_id", res.ID.String()), zap.String("slug", res.Slug))
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": res.ID, "slug": res.Slug})
}

// DeleteProfile handles DELETE /api/v1/admin/profiles/:mcId
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	log := middleware.GetLoggerFromGinContext(c)

	id, err := uuid.Parse(c.Param("mcId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile id"})
		return
	}

	if err := h.service.DeleteProfile(ctx, id); err != nil {
		middleware.RecordError(span, err)
		log.Error("Failed to delete profile", zap.String("mc_id", id.String()), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UploadAsset handles POST /api/v1/admin/uploads
func (h *ProfileHandler) UploadAsset(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	log := middleware.GetLoggerFromGinContext(c)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	asset, err := h.readFile(fh)
	if err != nil {
		writeFileError(c, err)
		return
	}

	up, err := h.service.UploadAsset(ctx, c.PostForm("folder"), asset)
	if err != nil {
		middleware.RecordError(span, err)
		log.Error("Failed to upload asset", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": up.URL})
}

// GetProfile handles GET /api/v1/profiles/:slug
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()

	slug := strings.ToLower(strings.TrimSpace(c.Param("slug")))
	agg, err := h.service.GetProfileBySlug(ctx, slug)
	if err != nil {
		middleware.RecordError(span, err)
		if !errors.Is(err, domain.ErrProfileNotFound) {
			middleware.GetLoggerFromGinContext(c).Error("Failed to get profile", zap.String("slug", slug), zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// ListProfiles handles GET /api/v1/profiles
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()

	featured, _ := strconv.ParseBool(c.DefaultQuery("featured", "false"))
	profiles, err := h.service.ListProfiles(ctx, featured)
	if err != nil {
		middleware.RecordError(span, err)
		middleware.GetLoggerFromGinContext(c).Error("Failed to list profiles", zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// bindDesiredState reads a JSON body, or a multipart body whose "payload"
// part is the JSON document and whose "profileImage" and "photos" parts are files.
func (h *ProfileHandler) bindDesiredState(c *gin.Context, span trace.Span, log *zap.Logger) (domain.DesiredState, bool) {
	var desired domain.DesiredState

	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBindJSON(&desired); err != nil {
			span.SetAttributes(attribute.Bool("request.valid", false))
			log.Warn("Invalid request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeValidationError(err)})
			return desired, false
		}
		span.SetAttributes(attribute.Bool("request.valid", true))
		return desired, true
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warn("Invalid multipart request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return desired, false
	}
	payload := form.Value["payload"]
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is required"})
		return desired, false
	}
	if err := json.Unmarshal([]byte(payload[0]), &desired); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		log.Warn("Invalid payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeValidationError(err)})
		return desired, false
	}

	if files := form.File["profileImage"]; len(files) > 0 {
		asset, err := h.readFile(files[0])
		if err != nil {
			writeFileError(c, err)
			return desired, false
		}
		desired.ProfileImage = &asset
	}
	for _, fh := range form.File["photos"] {
		asset, err := h.readFile(fh)
		if err != nil {
			writeFileError(c, err)
			return desired, false
		}
		desired.NewPhotos = append(desired.NewPhotos, asset)
	}

	span.SetAttributes(
		attribute.Bool("request.valid", true),
		attribute.Int("request.photos", len(desired.NewPhotos)),
	)
	return desired, true
}

func (h *ProfileHandler) readFile(fh *multipart.FileHeader) (domain.Asset, error) {
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return domain.Asset{}, fmt.Errorf("%s: %w", fh.Filename, errFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Asset{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxUploadBytes > 0 {
		r = io.LimitReader(f, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		return domain.Asset{}, fmt.Errorf("%s: %w", fh.Filename, errFileTooLarge)
	}
	if len(data) == 0 {
		return domain.Asset{}, fmt.Errorf("%s: %w", fh.Filename, errEmptyFile)
	}
	return domain.Asset{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeFileError(c *gin.Context, err error) {
	if errors.Is(err, errFileTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	if errors.Is(err, errEmptyFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file"})
}

// writeError maps logic errors to responses. A failed save step reports the
// step's fixed message, even when its cause is a duplicate slug. Only a
// missing profile takes precedence over the step.
func writeError(c *gin.Context, err error) {
	var (
		vErr    *domain.ValidationError
		stepErr *domain.StepError
		upErr   *domain.UploadError
	)
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, domain.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	case errors.As(err, &stepErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": stepErr.Error()})
	case errors.Is(err, domain.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Slug already taken"})
	case errors.Is(err, domain.ErrProfileBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Profile is being saved by another request"})
	case errors.As(err, &upErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
