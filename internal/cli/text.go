package cli

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	textLong = templates.LongDesc(`
		Publish a text post. All arguments are joined with spaces.`)

	textExample = templates.Examples(`
		publishctl text "hello world"`)
)

// TextOptions defines the options for the `text` command.
type TextOptions struct {
	Text string
	JSON bool

	root *RootOptions
}

// NewTextOptions provides an initialised TextOptions instance.
func NewTextOptions(root *RootOptions) *TextOptions {
	return &TextOptions{root: root}
}

// NewTextCommand creates the `text` command.
func NewTextCommand(o *TextOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "text [TEXT...]",
		DisableFlagsInUseLine: true,
		Short:                 "Publish a text post",
		Long:                  textLong,
		Example:               textExample,
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

	cmd.Flags().BoolVar(&o.JSON, "json", false, "Print the result as JSON")

	return cmd
}

// Complete joins the positional arguments into the post text.
func (o *TextOptions) Complete(_ *cobra.Command, args []string) error {
	o.Text = strings.TrimSpace(strings.Join(args, " "))
	return nil
}

// Validate rejects an empty post.
func (o *TextOptions) Validate() error {
	if o.Text == "" {
		return errors.New("post text is required")
	}
	return nil
}

// Run publishes the post and prints the record descriptor.
func (o *TextOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := o.root.components()
	if err != nil {
		return err
	}
	sess, err := c.Sessions.Session(ctx)
	if err != nil {
		return describe(err)
	}

	progress := progressPrinter{w: o.root.ErrOut}
	result, err := c.Publisher.PublishText(ctx, sess, o.Text, progress.sink)
	if err != nil {
		return describe(err)
	}
	return printResult(o.root.Out, result, o.JSON)
}
