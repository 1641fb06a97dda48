package models

import (
	"fmt"
	"sort"
)

// Tier is the billing tier of an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// UserProfile is the authenticated user's account record as pushed by the realtime store.
type UserProfile struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Avatar           string `json:"avatar"`
	Credits          int    `json:"credits"`
	Tier             Tier   `json:"tier"`
	StripeCustomerID string `json:"stripe_customer_id"`
	SubscriptionID   string `json:"subscription_id"`
	PlanActive       bool   `json:"plan_active"`
	PlanExpires      int64  `json:"plan_expires"`
}

// VideoRecord represents one video owned by the user.
type VideoRecord struct {
	ID                  string  `json:"id"`
	QueueID             string  `json:"queue_id"`
	QueuedTime          int64   `json:"queued_time"`
	Duration            float64 `json:"video_duration"`
	Resolution          int     `json:"video_resolution"`
	Progress            int     `json:"processing_progress"`
	ProcessingStartTime int64   `json:"processing_start_time,omitempty"`
	ProcessingError     string  `json:"processing_error,omitempty"`
	ThumbnailURL        string  `json:"thumbnail_url,omitempty"`
	PreviewURL          string  `json:"preview_url,omitempty"`
	StorageFilename     string  `json:"storage_filename,omitempty"`
	Title               string  `json:"video_title,omitempty"`
	ExtraDataID         string  `json:"extra_data,omitempty"`
	UserTier            Tier    `json:"user_tier"`
	UserID              string  `json:"user_id"`
}

// ProcessingState is an ordered, opaque view of a video's processing progress.
// Intermediate progress values are not treated as percentages.
type ProcessingState int

const (
	StateFailed ProcessingState = iota - 1
	StateQueued
	StateProcessing
	StateComplete
)

func (s ProcessingState) String() string {
	switch s {
	case StateFailed:
		return "failed"
	case StateQueued:
		return "queued"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// State maps the backend's processing_progress encoding to a ProcessingState.
func (v VideoRecord) State() ProcessingState {
	switch {
	case v.Progress < 0:
		return StateFailed
	case v.Progress == 0:
		return StateQueued
	case v.Progress >= 100:
		return StateComplete
	default:
		return StateProcessing
	}
}

// Terminal reports whether the video will no longer change state on its own.
func (v VideoRecord) Terminal() bool {
	s := v.State()
	return s == StateFailed || s == StateComplete
}

// DisplayTitle returns the title or falls back to the queue id.
func (v VideoRecord) DisplayTitle() string {
	if v.Title != "" {
		return v.Title
	}
	if v.QueueID != "" {
		return v.QueueID
	}
	return v.ID
}

// SortNewestFirst orders videos by queued time, newest first.
func SortNewestFirst(videos []VideoRecord) {
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].QueuedTime > videos[j].QueuedTime
	})
}

// CountActive returns the number of videos still queued or processing.
func CountActive(videos []VideoRecord) int {
	n := 0
	for _, v := range videos {
		if !v.Terminal() {
			n++
		}
	}
	return n
}

// Snapshot is one consistent view of the user profile and their videos.
type Snapshot struct {
	Seq     uint64
	Profile *UserProfile
	Videos  []VideoRecord
}

// Platform names the origin of a submitted video.
type Platform string

const (
	PlatformNone    Platform = ""
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
	PlatformUpload  Platform = "upload"
)

// Resolution is the target output height.
type Resolution int

const (
	Resolution480  Resolution = 480
	Resolution720  Resolution = 720
	Resolution1080 Resolution = 1080
)

// Valid reports whether r is one of the supported output resolutions.
func (r Resolution) Valid() bool {
	switch r {
	case Resolution480, Resolution720, Resolution1080:
		return true
	default:
		return false
	}
}

// QueueOptions is the flattened submission sent to the enqueue endpoint.
type QueueOptions struct {
	Platform          Platform   `json:"video_platform"`
	StartTime         float64    `json:"video_start_time"`
	EndTime           float64    `json:"video_end_time"`
	AutoEdit          bool       `json:"auto_edit"`
	MuteProfanity     bool       `json:"mute_profanity"`
	GenerateAIContent bool       `json:"generate_ai_content"`
	Resolution        Resolution `json:"video_resolution"`

	// Upload sources.
	OriginalFileName string `json:"video_title,omitempty"`
	UploadFilename   string `json:"upload_filename,omitempty"`

	// Platform sources.
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	PlatformVideoID string `json:"platform_video_id,omitempty"`
}

// AIContent is the generated metadata linked from a video's extra data id.
type AIContent struct {
	Title       string        `json:"ai_title"`
	Description string        `json:"ai_description"`
	Tags        []string      `json:"ai_tags"`
	Timestamps  []AITimestamp `json:"ai_timestamps"`
}

// AITimestamp marks a chapter in the generated content.
type AITimestamp struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
}

// Empty reports whether no usable generated text exists.
func (a AIContent) Empty() bool {
	return a.Title == "" && a.Description == ""
}
