package cli

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"slowclaw/internal/publish/models"
)

var (
	videoLong = templates.LongDesc(`
		Upload a local video, wait for remote processing, then publish a post
		embedding it. Progress is printed to stderr.`)

	videoExample = templates.Examples(`
		# Publish with caption and alt text
		publishctl video ./clip.mp4 --text "look" --alt "a cat on a keyboard"

		# Allow a slow transcode more time
		publishctl video ./long.mp4 --poll-timeout 10m`)
)

// VideoOptions defines the options for the `video` command.
type VideoOptions struct {
	Path        string
	Text        string
	AltText     string
	Name        string
	ContentType string
	Timeout     time.Duration
	JSON        bool

	root *RootOptions
}

// NewVideoOptions provides an initialised VideoOptions instance.
func NewVideoOptions(root *RootOptions) *VideoOptions {
	return &VideoOptions{root: root}
}

// NewVideoCommand creates the `video` command.
func NewVideoCommand(o *VideoOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "video PATH",
		DisableFlagsInUseLine: true,
		Short:                 "Publish a video post",
		Long:                  videoLong,
		Example:               videoExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.Text, "text", "t", "", "Post text")
	flags.StringVar(&o.AltText, "alt", "", "Alt text for the video")
	flags.StringVar(&o.Name, "name", "", "Upload name (default: the file name)")
	flags.StringVar(&o.ContentType, "content-type", "", "Video content type (default: video/mp4)")
	flags.DurationVar(&o.Timeout, "timeout", 0, "Abort the whole publish after this long")
	flags.BoolVar(&o.JSON, "json", false, "Print the result as JSON")

	return cmd
}

// Complete takes the video path from the first argument.
func (o *VideoOptions) Complete(_ *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("video path is required")
	}
	o.Path = strings.TrimSpace(args[0])
	o.Text = strings.TrimSpace(o.Text)
	return nil
}

// Validate checks flag combinations. File checks happen in the pipeline.
func (o *VideoOptions) Validate() error {
	if o.Path == "" {
		return errors.New("video path is required")
	}
	if o.Timeout < 0 {
		return errors.New("--timeout must not be negative")
	}
	if o.ContentType != "" && !strings.HasPrefix(o.ContentType, "video/") {
		return errors.New("--content-type must be a video type")
	}
	return nil
}

// Run publishes the video and prints the record descriptor.
func (o *VideoOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	c, err := o.root.components()
	if err != nil {
		return err
	}
	sess, err := c.Sessions.Session(ctx)
	if err != nil {
		return describe(err)
	}

	progress := progressPrinter{w: o.root.ErrOut}
	result, err := c.Publisher.PublishVideo(ctx, sess, o.Text, models.VideoPayload{
		Path:        o.Path,
		Name:        o.Name,
		ContentType: o.ContentType,
		AltText:     o.AltText,
	}, progress.sink)
	if err != nil {
		return describe(err)
	}
	return printResult(o.root.Out, result, o.JSON)
}
