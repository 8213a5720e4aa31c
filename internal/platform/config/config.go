// Package config loads runtime settings from SLOWCLAW_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"slowclaw/internal/publish/models"
)

// EnvPrefix prefixes every environment variable, e.g. SLOWCLAW_BLUESKY_HANDLE.
const EnvPrefix = "SLOWCLAW"

// Keys. A dot becomes an underscore in the environment variable name.
const (
	KeyAddr           = "addr"
	KeyEnvironment    = "env"
	KeyLogLevel       = "log_level"
	KeyTracing        = "tracing"
	KeyServiceURL     = "bluesky.service_url"
	KeyHandle         = "bluesky.handle"
	KeyAppPassword    = "bluesky.app_password"
	KeyAccessJWT      = "bluesky.access_jwt"
	KeyRefreshJWT     = "bluesky.refresh_jwt"
	KeyDID            = "bluesky.did"
	KeyVideoURL       = "video.service_url"
	KeyPollInterval   = "video.poll_interval"
	KeyPollTimeout    = "video.poll_timeout"
	KeyHTTPTimeout    = "http_timeout"
	KeyHandlerTimeout = "handler_timeout"
	KeyMaxBodyBytes   = "max_body_bytes"
	KeyTaskRetention  = "task_retention"
	KeyRunTimeout     = "run_timeout"
)

// Bluesky holds the account settings. Either Handle+AppPassword or
// AccessJWT+DID is needed to publish.
type Bluesky struct {
	ServiceURL  string
	Handle      string
	AppPassword string
	AccessJWT   string
	RefreshJWT  string
	DID         string
}

// Video holds the processing host settings.
type Video struct {
	ServiceURL   string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Server captures process level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	Tracing        bool
	HTTPTimeout    time.Duration
	HandlerTimeout time.Duration
	MaxBodyBytes   int64
	TaskRetention  int
	RunTimeout     time.Duration

	Bluesky Bluesky
	Video   Video
}

// NewViper returns a viper instance bound to the SLOWCLAW_* environment with
// defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAddr, "127.0.0.1:8787")
	v.SetDefault(KeyEnvironment, "local")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyTracing, false)
	v.SetDefault(KeyServiceURL, models.DefaultServiceEndpoint)
	v.SetDefault(KeyVideoURL, models.DefaultVideoEndpoint)
	v.SetDefault(KeyPollInterval, models.DefaultPollInterval)
	v.SetDefault(KeyPollTimeout, models.DefaultPollTimeout)
	v.SetDefault(KeyHTTPTimeout, 5*time.Minute)
	v.SetDefault(KeyHandlerTimeout, 30*time.Second)
	v.SetDefault(KeyMaxBodyBytes, int64(1<<20))
	v.SetDefault(KeyTaskRetention, 256)
	v.SetDefault(KeyRunTimeout, time.Duration(0))

	// AutomaticEnv only resolves keys viper already knows about; secrets have
	// no default so they are bound explicitly.
	for _, key := range []string{KeyHandle, KeyAppPassword, KeyAccessJWT, KeyRefreshJWT, KeyDID} {
		_ = v.BindEnv(key)
	}
	return v
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return Load(NewViper())
}

// Load reads a Server config from v and validates it.
func Load(v *viper.Viper) (Server, error) {
	cfg := Server{
		Addr:           strings.TrimSpace(v.GetString(KeyAddr)),
		Environment:    v.GetString(KeyEnvironment),
		LogLevel:       v.GetString(KeyLogLevel),
		Tracing:        v.GetBool(KeyTracing),
		HTTPTimeout:    v.GetDuration(KeyHTTPTimeout),
		HandlerTimeout: v.GetDuration(KeyHandlerTimeout),
		MaxBodyBytes:   v.GetInt64(KeyMaxBodyBytes),
		TaskRetention:  v.GetInt(KeyTaskRetention),
		RunTimeout:     v.GetDuration(KeyRunTimeout),
		Bluesky: Bluesky{
			ServiceURL:  strings.TrimRight(strings.TrimSpace(v.GetString(KeyServiceURL)), "/"),
			Handle:      strings.TrimSpace(v.GetString(KeyHandle)),
			AppPassword: v.GetString(KeyAppPassword),
			AccessJWT:   strings.TrimSpace(v.GetString(KeyAccessJWT)),
			RefreshJWT:  strings.TrimSpace(v.GetString(KeyRefreshJWT)),
			DID:         strings.TrimSpace(v.GetString(KeyDID)),
		},
		Video: Video{
			ServiceURL:   strings.TrimRight(strings.TrimSpace(v.GetString(KeyVideoURL)), "/"),
			PollInterval: v.GetDuration(KeyPollInterval),
			PollTimeout:  v.GetDuration(KeyPollTimeout),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Server) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Video.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("video.poll_interval must be positive, got %s", c.Video.PollInterval))
	}
	if c.Video.PollTimeout < c.Video.PollInterval {
		errs = append(errs, fmt.Errorf("video.poll_timeout (%s) must not be shorter than the poll interval", c.Video.PollTimeout))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, errors.New("run_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// HasLogin reports whether handle and app password are configured.
func (b Bluesky) HasLogin() bool {
	return b.Handle != "" && b.AppPassword != ""
}

// HasToken reports whether a pre-issued session is configured.
func (b Bluesky) HasToken() bool {
	return b.AccessJWT != "" && b.DID != ""
}

// Credentials returns the login credentials.
func (b Bluesky) Credentials() models.Credentials {
	return models.Credentials{
		ServiceEndpoint: b.ServiceURL,
		Identifier:      b.Handle,
		Password:        b.AppPassword,
	}
}
