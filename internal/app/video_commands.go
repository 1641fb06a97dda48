package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/clipqueue/client/internal/auth"
	"github.com/clipqueue/client/internal/handlers"
	"github.com/clipqueue/client/internal/httpserver"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/notify"
	"github.com/clipqueue/client/internal/videos"
	"github.com/clipqueue/client/internal/worker"
)

var errVideoNotFound = errors.New("video not found")

// loadSnapshot fetches the signed-in user's profile and videos.
func loadSnapshot(cmd *cobra.Command, d *dependencies) (models.Snapshot, error) {
	record, err := d.requireSession()
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := d.realtime.Fetch(cmd.Context(), record.UserID); err != nil {
		return models.Snapshot{}, err
	}
	return d.realtime.Snapshot(), nil
}

func findVideo(snap models.Snapshot, id string) (models.VideoRecord, error) {
	for _, v := range snap.Videos {
		if v.ID == id || v.QueueID == id {
			return v, nil
		}
	}
	return models.VideoRecord{}, fmt.Errorf("%w: %s", errVideoNotFound, id)
}

func newListCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your videos, newest first",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			snap, err := loadSnapshot(cmd, d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderVideos(snap.Videos, time.Now()))
			return nil
		}),
	}
}

func newWatchCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow your videos as processing advances",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			record, err := d.requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			unregister := d.realtime.OnChange(func(snap models.Snapshot) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(out, renderVideos(snap.Videos, time.Now()))
			})
			defer unregister()

			stopSession := d.session.OnChange(func(rec auth.SessionRecord) {
				if rec.Token == "" {
					cancel()
				}
			})
			defer stopSession()

			if err := d.realtime.Fetch(ctx, record.UserID); err != nil {
				return err
			}
			if err := d.realtime.Subscribe(ctx, record.UserID); err != nil {
				return err
			}
			defer d.realtime.Unsubscribe()

			<-ctx.Done()
			if !d.session.Authenticated() {
				return auth.ErrNotAuthenticated
			}
			return nil
		}),
	}
}

// submitOptions are the processing flags shared by the submit commands.
type submitOptions struct {
	start         float64
	end           float64
	resolution    int
	autoEdit      bool
	muteProfanity bool
	aiContent     bool
}

func (o *submitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&o.start, "start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&o.end, "end", 0, "Clip end in seconds")
	cmd.Flags().IntVar(&o.resolution, "resolution", 0, "Output resolution (480, 720 or 1080)")
	cmd.Flags().BoolVar(&o.autoEdit, "auto-edit", false, "Let the backend pick highlights")
	cmd.Flags().BoolVar(&o.muteProfanity, "mute-profanity", true, "Mute profanity in the output")
	cmd.Flags().BoolVar(&o.aiContent, "ai-content", false, "Generate a title, description and chapters")
}

// apply writes the flags onto the draft. Platform sources have no known
// length, so their range is only checked for order and minimum length.
func (o submitOptions) apply(cmd *cobra.Command, store *input.Store) error {
	for path, value := range map[string]bool{
		"options.autoEdit":      o.autoEdit,
		"options.muteProfanity": o.muteProfanity,
		"options.aiContent":     o.aiContent,
	} {
		if err := store.Set(path, value); err != nil {
			return err
		}
	}

	if cmd.Flags().Changed("resolution") {
		res := models.Resolution(o.resolution)
		if !res.Valid() {
			return &input.ValidationError{Field: "resolution", Reason: fmt.Sprintf("%d is not one of 480, 720, 1080", o.resolution)}
		}
		if err := store.Set("basic.resolution", res); err != nil {
			return err
		}
	}

	if !cmd.Flags().Changed("start") && !cmd.Flags().Changed("end") {
		return nil
	}
	draft := store.Get()
	if _, ok := draft.Basic.Source.(input.UploadSource); ok {
		end := draft.Basic.SectionLength.End
		if cmd.Flags().Changed("end") {
			end = o.end
		}
		_, err := store.SelectRange(o.start, end)
		return err
	}

	if !cmd.Flags().Changed("end") {
		return &input.ValidationError{Field: "range", Reason: "--end is required with --start for platform videos"}
	}
	r, err := input.SelectRange(o.start, o.end, math.Inf(1))
	if err != nil {
		return err
	}
	if err := store.Set("basic.sectionLength.start", r.Start); err != nil {
		return err
	}
	return store.Set("basic.sectionLength.end", r.End)
}

func newSubmitCommand(cc *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit <file.mp4>",
		Short: "Upload a local .mp4 and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			ctx := cmd.Context()
			if _, err := loadSnapshot(cmd, d); err != nil {
				return err
			}

			transfer, err := d.uploads.Upload(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploading %s (preview %s)\n", transfer.Source.FileName, transfer.Source.PreviewURL)

			select {
			case <-transfer.Probed():
			case <-ctx.Done():
				return ctx.Err()
			}
			if length := transfer.Duration(); length > 0 {
				fmt.Fprintf(out, "Length %s\n", videos.FormatTime(length, true, true))
			}
			if err := transfer.Wait(ctx); err != nil {
				return err
			}

			if err := opts.apply(cmd, d.input); err != nil {
				d.blobs.Revoke(transfer.Source.PreviewURL)
				d.input.Reset()
				return err
			}
			return enqueue(cmd, d)
		}),
	}
	opts.bind(cmd)
	return cmd
}

func newSubmitURLCommand(cc *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit-url <url>",
		Short: "Queue a YouTube or Twitch video for processing",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			ctx := cmd.Context()
			if _, err := loadSnapshot(cmd, d); err != nil {
				return err
			}

			platform, id := input.Recognize(args[0])
			if platform == models.PlatformNone {
				_ = d.input.Set("states.invalidInput", true)
				notify.Error(ctx, d.notifier, "Invalid URL: only YouTube and Twitch links are supported")
				return &input.ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not a recognised video link", args[0])}
			}

			source := input.SourceFor(platform, id)
			if err := d.input.Set("basic.source", source); err != nil {
				return err
			}
			if thumb := input.Thumbnail(source); thumb != "" && thumb != input.ThumbnailNotFound {
				fmt.Fprintf(cmd.OutOrStdout(), "Thumbnail %s\n", thumb)
			}

			if err := opts.apply(cmd, d.input); err != nil {
				d.input.Reset()
				return err
			}
			return enqueue(cmd, d)
		}),
	}
	opts.bind(cmd)
	return cmd
}

func enqueue(cmd *cobra.Command, d *dependencies) error {
	ack, err := d.enqueuer.Enqueue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", ack.Title, ack.Platform)
	return nil
}

func newDownloadCommand(cc *commandContext) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "download <video-id>",
		Short: "Download a processed video",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			snap, err := loadSnapshot(cmd, d)
			if err != nil {
				return err
			}
			video, err := findVideo(snap, args[0])
			if err != nil {
				return err
			}
			if video.State() != models.StateComplete {
				return fmt.Errorf("video %s is %s, only complete videos can be downloaded", video.ID, video.State())
			}

			res, err := d.worker.Delegate(cmd.Context(), worker.Task{
				Operation: worker.OperationDownload,
				Payload:   worker.Payload{VideoID: video.ID, Title: video.Title},
			})
			if err != nil {
				return err
			}
			ref := res.Reference
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) to %s\n", ref.Filename, humanize.Bytes(uint64(ref.Size)), ref.Location)

			if !serve || ref.Blob == "" {
				return nil
			}
			return servePreview(cmd, d, d.cfg.PreviewPort, ref.Blob)
		}),
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the download on the local preview server until interrupted")
	return cmd
}

func newDeleteCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete a video",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			snap, err := loadSnapshot(cmd, d)
			if err != nil {
				return err
			}
			video, err := findVideo(snap, args[0])
			if err != nil {
				return err
			}

			if _, err := d.worker.Delegate(cmd.Context(), worker.Task{
				Operation: worker.OperationDelete,
				Payload:   worker.Payload{VideoID: video.ID, Title: video.DisplayTitle()},
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Delete requested. The video disappears from `clipqueue list` once the backend confirms it.")
			return nil
		}),
	}
}

func newAICommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ai <video-id>",
		Short: "Show the generated title, description and chapters of a video",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			snap, err := loadSnapshot(cmd, d)
			if err != nil {
				return err
			}
			video, err := findVideo(snap, args[0])
			if err != nil {
				return err
			}
			content, err := d.videos.AIContent(cmd.Context(), video.ExtraDataID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAIContent(content))
			return nil
		}),
	}
}

func newPreviewCommand(cc *commandContext) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Serve a local video on the loopback preview server",
		Args:  cobra.ExactArgs(1),
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			mtype, err := mimetype.DetectFile(args[0])
			if err != nil {
				return fmt.Errorf("detect type of %s: %w", filepath.Base(args[0]), err)
			}
			ref, err := d.blobs.Create(args[0], mtype.String())
			if err != nil {
				return err
			}
			defer d.blobs.Revoke(ref)

			if !cmd.Flags().Changed("port") {
				port = d.cfg.PreviewPort
			}
			return servePreview(cmd, d, port, ref)
		}),
	}
	cmd.Flags().IntVar(&port, "port", 0, "Preview server port (0 picks a free port)")
	return cmd
}

func servePreview(cmd *cobra.Command, d *dependencies, port int, ref string) error {
	srv := d.previewServer(port)
	base, err := srv.Listen()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s (Ctrl-C to stop)\n", handlers.BlobURL(base, ref))
	return httpserver.Run(cmd.Context(), srv)
}

func newClearUploadsCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-uploads",
		Short: "Discard partially uploaded files on the backend",
		Args:  cobra.NoArgs,
		RunE: cc.withDeps(func(cmd *cobra.Command, d *dependencies, args []string) error {
			if _, err := d.requireSession(); err != nil {
				return err
			}
			if err := d.api.ClearPartialUploads(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Partial uploads cleared")
			return nil
		}),
	}
}

func renderVideos(list []models.VideoRecord, now time.Time) string {
	if len(list) == 0 {
		return "No videos yet"
	}
	rows := make([][]string, 0, len(list))
	for _, v := range list {
		rows = append(rows, []string{
			v.ID,
			v.DisplayTitle(),
			describeState(v, now),
			humanize.RelTime(time.UnixMilli(v.QueuedTime), now, "ago", "from now"),
			videos.FormatTime(v.Duration, true, true),
			fmt.Sprintf("%dp", v.Resolution),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "State", "Queued", "Length", "Resolution"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func describeState(v models.VideoRecord, now time.Time) string {
	switch v.State() {
	case models.StateFailed:
		if v.ProcessingError != "" {
			return "failed: " + v.ProcessingError
		}
		return "failed"
	case models.StateProcessing:
		if v.ProcessingStartTime > 0 {
			return fmt.Sprintf("processing, ~%d min left", videos.EstimatedMinutes(v.ProcessingStartTime, v.Duration, now))
		}
		return "processing"
	default:
		return v.State().String()
	}
}

func renderAIContent(c models.AIContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\n%s\n", c.Title, c.Description)
	if len(c.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(c.Tags, ", "))
	}
	if len(c.Timestamps) > 0 {
		rows := make([][]string, 0, len(c.Timestamps))
		for _, ts := range c.Timestamps {
			rows = append(rows, []string{ts.Timestamp, ts.Title})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Time", "Chapter"}, rows, []columnAlignment{alignRight, alignLeft}))
	}
	return strings.TrimRight(b.String(), "\n")
}
