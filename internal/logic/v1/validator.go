package v1

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

// Rejection records one dropped input row.
type Rejection struct {
	Kind     string `json:"kind"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

// Validated holds the rows that survived validation, each stamped with
// its position in Accepted, plus the rows that were dropped.
type Validated[T any] struct {
	Accepted []T
	Rejected []Rejection
}

// filterValid keeps rows for which check returns an empty reason. index is
// the row's position among the accepted rows, so dropped rows leave no gaps.
func filterValid[R, T any](kind string, rows []R, check func(row R, index int) (T, string)) Validated[T] {
	out := Validated[T]{Accepted: make([]T, 0, len(rows))}
	for pos, row := range rows {
		v, reason := check(row, len(out.Accepted))
		if reason != "" {
			out.Rejected = append(out.Rejected, Rejection{Kind: kind, Position: pos, Reason: reason})
			continue
		}
		out.Accepted = append(out.Accepted, v)
	}
	return out
}

// ValidatePackages keeps packages with a name and a positive price.
func ValidatePackages(rows []domain.RawPackage) Validated[domain.Package] {
	return filterValid("package", rows, func(r domain.RawPackage, index int) (domain.Package, string) {
		if r.Name.Blank() {
			return domain.Package{}, "missing name"
		}
		if r.Price.Blank() {
			return domain.Package{}, "missing price"
		}
		price, ok := r.Price.Float()
		if !ok || math.IsNaN(price) || math.IsInf(price, 0) {
			return domain.Package{}, "invalid price"
		}
		if price <= 0 {
			return domain.Package{}, "non-positive price"
		}
		return domain.Package{
			Name:       r.Name.Trimmed(),
			Price:      price,
			Duration:   r.Duration.Optional(),
			IdealFor:   r.IdealFor.Optional(),
			Inclusions: SplitLines(r.Inclusions.String()),
			Popular:    r.Popular.Bool(),
			OrderIndex: index,
		}, ""
	})
}

// ValidateVideos keeps videos with a non-blank video id. Pasted watch URLs are
// reduced to the id when it can be found; anything else is stored as given.
func ValidateVideos(rows []domain.RawVideo) Validated[domain.Video] {
	return filterValid("video", rows, func(r domain.RawVideo, index int) (domain.Video, string) {
		if r.VideoID.Blank() {
			return domain.Video{}, "missing video_id"
		}
		platform, ok := parsePlatform(r.Platform.Trimmed(), r.VideoID.Trimmed())
		if !ok {
			return domain.Video{}, "unknown platform"
		}
		return domain.Video{
			Platform:   platform,
			VideoID:    normalizeVideoID(platform, r.VideoID.Trimmed()),
			Title:      r.Title.Optional(),
			OrderIndex: index,
		}, ""
	})
}

// ValidateReviews keeps reviews with a reviewer name and review text.
func ValidateReviews(rows []domain.RawReview) Validated[domain.Review] {
	return filterValid("review", rows, func(r domain.RawReview, index int) (domain.Review, string) {
		if r.ReviewerName.Blank() {
			return domain.Review{}, "missing reviewer_name"
		}
		if r.ReviewText.Blank() {
			return domain.Review{}, "missing review_text"
		}
		return domain.Review{
			ReviewerName: r.ReviewerName.Trimmed(),
			Rating:       parseRating(r.Rating),
			ReviewText:   r.ReviewText.Trimmed(),
			ReviewDate:   parseReviewDate(r.ReviewDate.Trimmed()),
			OrderIndex:   index,
		}, ""
	})
}

// SplitLines splits a multi-line field into trimmed, non-empty lines.
func SplitLines(s string) []string {
	lines := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseLanguages turns the comma-separated languages field into a list.
// Blank input yields the default language. Input that is only separators
// is rejected.
func ParseLanguages(raw, defaultLanguage string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{defaultLanguage}, nil
	}
	seen := make(map[string]struct{})
	langs := []string{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key := strings.ToLower(tok)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		langs = append(langs, tok)
	}
	if len(langs) == 0 {
		return nil, &domain.ValidationError{Field: "languages", Reason: "must contain at least one language"}
	}
	return langs, nil
}

// NormalizeAdditionalInfo returns nil when every field is blank.
func NormalizeAdditionalInfo(f domain.FormData) *domain.AdditionalInfo {
	info := domain.AdditionalInfo{
		ResponseTime:       f.ResponseTime.Optional(),
		BookingDeposit:     f.BookingDeposit.Optional(),
		CancellationPolicy: f.CancellationPolicy.Optional(),
	}
	if info.ResponseTime == nil && info.BookingDeposit == nil && info.CancellationPolicy == nil {
		return nil
	}
	return &info
}

// BuildProfileFields validates the root record fields of a save.
func BuildProfileFields(f domain.FormData, defaultLanguage string) (domain.ProfileFields, error) {
	name := f.Name.Trimmed()
	if name == "" {
		return domain.ProfileFields{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	slug := strings.ToLower(f.Slug.Trimmed())
	if slug == "" {
		return domain.ProfileFields{}, &domain.ValidationError{Field: "slug", Reason: "is required"}
	}
	email := f.Email.Trimmed()
	if email == "" {
		return domain.ProfileFields{}, &domain.ValidationError{Field: "email", Reason: "is required"}
	}
	langs, err := ParseLanguages(f.Languages.String(), defaultLanguage)
	if err != nil {
		return domain.ProfileFields{}, err
	}
	return domain.ProfileFields{
		Slug:              slug,
		Name:              name,
		Email:             email,
		Phone:             f.Phone.Optional(),
		Bio:               f.Bio.Optional(),
		Website:           f.Website.Optional(),
		Languages:         langs,
		Featured:          f.Featured.Bool(),
		GoogleReviewsLink: f.GoogleReviewsLink.Optional(),
	}, nil
}

const reviewDateLayout = "2006-01-02"

var (
	youTubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)
	vimeoIDRe   = regexp.MustCompile(`^[0-9]+$`)
)

func parsePlatform(raw, videoID string) (domain.VideoPlatform, bool) {
	switch strings.ToLower(raw) {
	case "":
		if strings.Contains(strings.ToLower(videoID), "vimeo.com") {
			return domain.VideoPlatformVimeo, true
		}
		return domain.VideoPlatformYouTube, true
	case string(domain.VideoPlatformYouTube):
		return domain.VideoPlatformYouTube, true
	case string(domain.VideoPlatformVimeo):
		return domain.VideoPlatformVimeo, true
	}
	return "", false
}

// normalizeVideoID returns the bare id found in a platform share URL, or raw
// unchanged when raw is not such a URL.
func normalizeVideoID(platform domain.VideoPlatform, raw string) string {
	if id := extractVideoID(platform, raw); id != "" {
		return id
	}
	return raw
}

func extractVideoID(platform domain.VideoPlatform, raw string) string {
	if !strings.Contains(raw, "/") {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch platform {
	case domain.VideoPlatformYouTube:
		switch {
		case host == "youtu.be" && len(segs) > 0:
			return validVideoID(platform, segs[0])
		case strings.HasSuffix(host, "youtube.com") || strings.HasSuffix(host, "youtube-nocookie.com"):
			if v := u.Query().Get("v"); v != "" {
				return validVideoID(platform, v)
			}
			if len(segs) >= 2 && (segs[0] == "embed" || segs[0] == "shorts" || segs[0] == "live" || segs[0] == "v") {
				return validVideoID(platform, segs[1])
			}
		}
	case domain.VideoPlatformVimeo:
		if strings.HasSuffix(host, "vimeo.com") {
			for i := len(segs) - 1; i >= 0; i-- {
				if id := validVideoID(platform, segs[i]); id != "" {
					return id
				}
			}
		}
	}
	return ""
}

func validVideoID(platform domain.VideoPlatform, id string) string {
	switch platform {
	case domain.VideoPlatformVimeo:
		if vimeoIDRe.MatchString(id) {
			return id
		}
	default:
		if youTubeIDRe.MatchString(id) {
			return id
		}
	}
	return ""
}

// parseRating defaults to 5 and clamps to 1..5.
func parseRating(raw domain.FlexString) int {
	v, ok := raw.Float()
	if !ok || math.IsNaN(v) {
		return 5
	}
	switch {
	case v < 1:
		return 1
	case v > 5:
		return 5
	}
	return int(math.Round(v))
}

func parseReviewDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(reviewDateLayout, raw); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}
