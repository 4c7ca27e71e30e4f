package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLanguage is used when a profile is saved without any languages.
const DefaultLanguage = "English"

// Profile is the root record of an MC profile aggregate.
type Profile struct {
	ID                uuid.UUID `json:"id"`
	Slug              string    `json:"slug"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Phone             *string   `json:"phone,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	Website           *string   `json:"website,omitempty"`
	Languages         []string  `json:"languages"`
	Featured          bool      `json:"featured"`
	ProfileImage      *string   `json:"profile_image,omitempty"`
	GoogleReviewsLink *string   `json:"google_reviews_link,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Photo struct {
	URL        string  `json:"url"`
	AltText    *string `json:"alt_text,omitempty"`
	OrderIndex int     `json:"order_index"`
}

type Package struct {
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Duration   *string  `json:"duration,omitempty"`
	IdealFor   *string  `json:"ideal_for,omitempty"`
	Inclusions []string `json:"inclusions"`
	Popular    bool     `json:"popular"`
	OrderIndex int      `json:"order_index"`
}

// VideoPlatform is the hosting service a video id belongs to.
type VideoPlatform string

const (
	VideoPlatformYouTube VideoPlatform = "youtube"
	VideoPlatformVimeo   VideoPlatform = "vimeo"
)

type Video struct {
	Platform   VideoPlatform `json:"platform"`
	VideoID    string        `json:"video_id"`
	Title      *string       `json:"title,omitempty"`
	OrderIndex int           `json:"order_index"`
}

type Review struct {
	ReviewerName string     `json:"reviewer_name"`
	Rating       int        `json:"rating"`
	ReviewText   string     `json:"review_text"`
	ReviewDate   *time.Time `json:"review_date,omitempty"`
	OrderIndex   int        `json:"order_index"`
}

// AdditionalInfo is stored at most once per profile, and only when
// at least one field is set.
type AdditionalInfo struct {
	ResponseTime       *string `json:"response_time,omitempty"`
	BookingDeposit     *string `json:"booking_deposit,omitempty"`
	CancellationPolicy *string `json:"cancellation_policy,omitempty"`
}

// ProfileAggregate is the read model: a profile with all dependent
// collections, each ordered by order_index.
type ProfileAggregate struct {
	Profile        Profile         `json:"profile"`
	Photos         []Photo         `json:"photos"`
	Packages       []Package       `json:"packages"`
	Videos         []Video         `json:"videos"`
	Reviews        []Review        `json:"reviews"`
	AdditionalInfo *AdditionalInfo `json:"additional_info,omitempty"`
}

// ProfileSummary is a directory listing entry.
type ProfileSummary struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Languages    []string  `json:"languages"`
	Featured     bool      `json:"featured"`
	ProfileImage *string   `json:"profile_image,omitempty"`
}

// ProfileFields are the validated scalar fields written to the root record.
type ProfileFields struct {
	Slug              string
	Name              string
	Email             string
	Phone             *string
	Bio               *string
	Website           *string
	Languages         []string
	Featured          bool
	ProfileImage      *string
	GoogleReviewsLink *string
}
