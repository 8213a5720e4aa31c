// Package cli implements the publishctl command line.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"slowclaw/internal/bootstrap"
	"slowclaw/internal/platform/config"
	"slowclaw/internal/platform/logger"
)

var (
	rootLong = templates.LongDesc(`
		Publish text and video posts to a Bluesky account from the command line.

		Credentials come from SLOWCLAW_BLUESKY_HANDLE and SLOWCLAW_BLUESKY_APP_PASSWORD,
		or from a pre-issued SLOWCLAW_BLUESKY_ACCESS_JWT and SLOWCLAW_BLUESKY_DID.
		Every setting can also live in a publishctl config file.`)

	rootExamples = templates.Examples(`
		# Publish a text post
		publishctl text "hello from the terminal"

		# Publish a video with alt text
		publishctl video ./clip.mp4 --text "look" --alt "a cat on a keyboard"

		# Inspect the current session
		publishctl request /xrpc/com.atproto.server.getSession`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// RootOptions holds settings shared by every subcommand.
type RootOptions struct {
	ConfigFile string
	Verbose    bool

	viper *viper.Viper

	iooption.IOStreams
}

// NewRootOptions provides an initialised RootOptions instance.
func NewRootOptions(streams iooption.IOStreams) *RootOptions {
	return &RootOptions{
		viper:     config.NewViper(),
		IOStreams: streams,
	}
}

// NewRootCommand creates the `publishctl` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewRootOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})
	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `publishctl` command and its children.
func NewRootCommandWithArgs(o *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "publishctl [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Publish posts and videos to Bluesky",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return o.readConfig()
		},
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&o.ConfigFile, "config", "", "Config file (default: publishctl.{yaml,json,toml} in ~/.config/slowclaw or the working directory)")
	pflags.BoolVarP(&o.Verbose, "verbose", "v", false, "Log pipeline activity to stderr")
	pflags.String("service-url", "", "Bluesky service URL")
	pflags.String("video-url", "", "Video processing service URL")
	pflags.Duration("poll-interval", 0, "Interval between job status polls")
	pflags.Duration("poll-timeout", 0, "How long to wait for video processing")

	for key, flag := range map[string]string{
		config.KeyServiceURL:   "service-url",
		config.KeyVideoURL:     "video-url",
		config.KeyPollInterval: "poll-interval",
		config.KeyPollTimeout:  "poll-timeout",
	} {
		_ = o.viper.BindPFlag(key, pflags.Lookup(flag))
	}

	cmd.AddCommand(NewTextCommand(NewTextOptions(o)))
	cmd.AddCommand(NewVideoCommand(NewVideoOptions(o)))
	cmd.AddCommand(NewRequestCommand(NewRequestOptions(o)))

	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func (o *RootOptions) readConfig() error {
	if o.ConfigFile != "" {
		o.viper.SetConfigFile(o.ConfigFile)
	} else {
		o.viper.SetConfigName("publishctl")
		o.viper.AddConfigPath("$HOME/.config/slowclaw")
		o.viper.AddConfigPath(".")
	}
	if err := o.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.ConfigFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// components loads configuration and wires the pipeline for one invocation.
func (o *RootOptions) components() (*bootstrap.Components, error) {
	cfg, err := config.Load(o.viper)
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.DiscardHandler)
	if o.Verbose {
		log = logger.NewWithWriter(o.ErrOut, "debug")
	}
	return bootstrap.Build(cfg, log, nil)
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
