package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for profile operations.
var (
	// ErrProfileNotFound indicates the profile does not exist.
	// HTTP Status: 404 Not Found
	ErrProfileNotFound = errors.New("profile not found")

	// ErrSlugTaken indicates another profile already uses the slug.
	// HTTP Status: 409 Conflict on create; a save reports its failed step instead
	ErrSlugTaken = errors.New("slug already taken")

	// ErrProfileBusy indicates another save of the same profile is in progress.
	// HTTP Status: 409 Conflict
	ErrProfileBusy = errors.New("profile is being saved by another request")

	// ErrUnauthorized indicates the caller may not perform the operation.
	// HTTP Status: 403 Forbidden
	ErrUnauthorized = errors.New("unauthorized access")
)

// Step names one stage of a profile save.
type Step string

const (
	StepUploadProfileImage   Step = "upload_profile_image"
	StepUpdateProfile        Step = "update_profile"
	StepDeletePhotos         Step = "delete_photos"
	StepDeletePackages       Step = "delete_packages"
	StepDeleteVideos         Step = "delete_videos"
	StepDeleteReviews        Step = "delete_reviews"
	StepDeleteAdditionalInfo Step = "delete_additional_info"
	StepUploadPhoto          Step = "upload_photo"
	StepInsertPhotos         Step = "insert_photos"
	StepInsertPackages       Step = "insert_packages"
	StepInsertVideos         Step = "insert_videos"
	StepInsertReviews        Step = "insert_reviews"
	StepInsertAdditionalInfo Step = "insert_additional_info"
	StepCommit               Step = "commit"
)

var stepMessages = map[Step]string{
	StepUploadProfileImage:   "Failed to upload profile image",
	StepUpdateProfile:        "Failed to update profile",
	StepDeletePhotos:         "Failed to delete photos",
	StepDeletePackages:       "Failed to delete packages",
	StepDeleteVideos:         "Failed to delete videos",
	StepDeleteReviews:        "Failed to delete reviews",
	StepDeleteAdditionalInfo: "Failed to delete additional info",
	StepUploadPhoto:          "Failed to upload photo",
	StepInsertPhotos:         "Failed to insert photos",
	StepInsertPackages:       "Failed to insert packages",
	StepInsertVideos:         "Failed to insert videos",
	StepInsertReviews:        "Failed to insert reviews",
	StepInsertAdditionalInfo: "Failed to insert additional info",
	StepCommit:               "Failed to commit profile changes",
}

// Message is the fixed, user-visible failure prefix for the step.
func (s Step) Message() string {
	if m, ok := stepMessages[s]; ok {
		return m
	}
	return "Failed to " + strings.ReplaceAll(string(s), "_", " ")
}

// StepError reports which step of a save failed. Steps before it may
// already be committed unless the save ran in a transaction.
type StepError struct {
	Step  Step
	Cause error
}

func (e *StepError) Error() string {
	if e.Cause == nil {
		return e.Step.Message()
	}
	return fmt.Sprintf("%s: %v", e.Step.Message(), e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// UploadError is returned when the object store rejects a write.
type UploadError struct {
	Key   string
	Cause error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Key, e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// ValidationError is a root-level input problem detected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// FailedStep returns the step an error originated from, if any.
func FailedStep(err error) (Step, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}
