package input

import "github.com/clipqueue/client/internal/models"

// Source identifies where the draft video comes from. The concrete types are
// NoSource, YouTubeSource, TwitchSource and UploadSource.
type Source interface {
	Platform() models.Platform
	isSource()
}

// NoSource is the empty draft.
type NoSource struct{}

// YouTubeSource references a YouTube video by its 11 character id.
type YouTubeSource struct {
	VideoID string
}

// TwitchSource references a Twitch VOD by its 10 digit id.
type TwitchSource struct {
	VideoID string
}

// TransferPhase tracks an upload's network transfer.
type TransferPhase string

const (
	PhasePendingTransfer  TransferPhase = "pending-transfer"
	PhaseTransferComplete TransferPhase = "transfer-complete"
)

// UploadSource is a local file being transferred to storage. The identifying
// fields are set before the transfer finishes; Phase tells the two apart.
type UploadSource struct {
	PreviewURL     string
	FileName       string
	UploadFilename string
	Phase          TransferPhase
}

func (NoSource) Platform() models.Platform      { return models.PlatformNone }
func (YouTubeSource) Platform() models.Platform { return models.PlatformYouTube }
func (TwitchSource) Platform() models.Platform  { return models.PlatformTwitch }
func (UploadSource) Platform() models.Platform  { return models.PlatformUpload }

func (NoSource) isSource()      {}
func (YouTubeSource) isSource() {}
func (TwitchSource) isSource()  {}
func (UploadSource) isSource()  {}

// SourceFor builds the platform source for a recognized id.
func SourceFor(platform models.Platform, id string) Source {
	switch platform {
	case models.PlatformYouTube:
		return YouTubeSource{VideoID: id}
	case models.PlatformTwitch:
		return TwitchSource{VideoID: id}
	default:
		return NoSource{}
	}
}
