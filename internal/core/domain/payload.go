package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexString is a loosely typed form value. Form layers send numbers,
// booleans, strings or null for the same field; all are kept as text.
// A JSON array of strings is joined with newlines.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case '[':
		var items []FlexString
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		lines := make([]string, 0, len(items))
		for _, it := range items {
			lines = append(lines, string(it))
		}
		*f = FlexString(strings.Join(lines, "\n"))
	case '{':
		return fmt.Errorf("unexpected object for form value")
	default:
		// numbers and booleans keep their literal text
		*f = FlexString(b)
	}
	return nil
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }

// Trimmed returns the value with surrounding whitespace removed.
func (f FlexString) Trimmed() string { return strings.TrimSpace(string(f)) }

// Blank reports whether the value is empty after trimming.
func (f FlexString) Blank() bool { return f.Trimmed() == "" }

// Optional returns nil for blank values, else a pointer to the trimmed value.
func (f FlexString) Optional() *string {
	s := f.Trimmed()
	if s == "" {
		return nil
	}
	return &s
}

// Bool interprets checkbox-style values.
func (f FlexString) Bool() bool {
	switch strings.ToLower(f.Trimmed()) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// Float parses the trimmed value as a decimal number.
func (f FlexString) Float() (float64, bool) {
	v, err := strconv.ParseFloat(f.Trimmed(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Asset is a binary file submitted with a save request.
type Asset struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FormData carries the root record's scalar fields plus the
// additional-info fields, as entered in the admin form.
type FormData struct {
	Name               FlexString `json:"name"`
	Slug               FlexString `json:"slug"`
	Email              FlexString `json:"email"`
	Phone              FlexString `json:"phone"`
	Bio                FlexString `json:"bio"`
	Website            FlexString `json:"website"`
	Languages          FlexString `json:"languages"`
	Featured           FlexString `json:"featured"`
	GoogleReviewsLink  FlexString `json:"google_reviews_link"`
	ResponseTime       FlexString `json:"response_time"`
	BookingDeposit     FlexString `json:"booking_deposit"`
	CancellationPolicy FlexString `json:"cancellation_policy"`
}

// ExistingPhoto is a previously stored photo the editor chose to keep.
type ExistingPhoto struct {
	URL     FlexString `json:"url"`
	AltText FlexString `json:"alt_text"`
}

type RawPackage struct {
	Name       FlexString `json:"name"`
	Price      FlexString `json:"price"`
	Duration   FlexString `json:"duration"`
	IdealFor   FlexString `json:"ideal_for"`
	Inclusions FlexString `json:"inclusions"`
	Popular    FlexString `json:"popular"`
}

type RawVideo struct {
	Platform FlexString `json:"platform"`
	VideoID  FlexString `json:"video_id"`
	Title    FlexString `json:"title"`
}

type RawReview struct {
	ReviewerName FlexString `json:"reviewer_name"`
	Rating       FlexString `json:"rating"`
	ReviewText   FlexString `json:"review_text"`
	ReviewDate   FlexString `json:"review_date"`
}

// DesiredState is the full submitted state of one profile aggregate.
// ProfileImage and NewPhotos are only populated from multipart requests.
type DesiredState struct {
	MCID            string          `json:"mcId"`
	FormData        FormData        `json:"formData"`
	ProfileImageURL FlexString      `json:"profileImageUrl"`
	ProfileImage    *Asset          `json:"-"`
	ExistingPhotos  []ExistingPhoto `json:"existingPhotos"`
	NewPhotoURLs    []string        `json:"newPhotoUrls"`
	NewPhotos       []Asset         `json:"-"`
	Packages        []RawPackage    `json:"packages"`
	Videos          []RawVideo      `json:"videos"`
	Reviews         []RawReview     `json:"reviews"`
}
