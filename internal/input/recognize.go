package input

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clipqueue/client/internal/models"
)

const (
	youTubeIDLength = 11
	twitchIDLength  = 10

	// ThumbnailNotFound is the thumbnail reference for platforms without a public thumbnail URL.
	ThumbnailNotFound = "NOT_FOUND"
)

var (
	youTubePattern = regexp.MustCompile(`^.*(?:(?:youtu\.be/|v/|vi/|u/\w/|embed/|shorts/)|(?:(?:watch)?\?v(?:i)?=|&v(?:i)?=))([^#&?]*).*`)
	twitchPattern  = regexp.MustCompile(`(?:https://)?www\.twitch\.tv/videos/(\d{10})`)
)

// Recognize extracts a platform video id from a pasted URL. YouTube is tried
// first. Anything else yields (PlatformNone, "").
func Recognize(text string) (models.Platform, string) {
	text = strings.TrimSpace(text)

	if m := youTubePattern.FindStringSubmatch(text); m != nil && len(m[1]) == youTubeIDLength {
		return models.PlatformYouTube, m[1]
	}
	if m := twitchPattern.FindStringSubmatch(text); m != nil && len(m[1]) == twitchIDLength {
		return models.PlatformTwitch, m[1]
	}
	return models.PlatformNone, ""
}

// Thumbnail returns the thumbnail reference for a platform source.
func Thumbnail(source Source) string {
	switch s := source.(type) {
	case YouTubeSource:
		return fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", s.VideoID)
	case TwitchSource:
		return ThumbnailNotFound
	case UploadSource, NoSource, nil:
		return ""
	default:
		panic(fmt.Sprintf("input: unhandled source %T", source))
	}
}
