package models

import "time"

// Remote protocol identifiers used by the pipeline.
const (
	NSIDCreateSession  = "com.atproto.server.createSession"
	NSIDGetServiceAuth = "com.atproto.server.getServiceAuth"
	NSIDCreateRecord   = "com.atproto.repo.createRecord"
	NSIDUploadVideo    = "app.bsky.video.uploadVideo"
	NSIDGetJobStatus   = "app.bsky.video.getJobStatus"

	// CapabilityUploadBlob is the lexicon method a scoped upload token is bound to.
	CapabilityUploadBlob = "com.atproto.repo.uploadBlob"

	CollectionPost = "app.bsky.feed.post"
	TypeEmbedVideo = "app.bsky.embed.video"

	DefaultVideoContentType = "video/mp4"
)

// Default endpoints and timings.
const (
	DefaultServiceEndpoint = "https://bsky.social"
	DefaultVideoEndpoint   = "https://video.bsky.app"

	ScopedTokenTTL      = 30 * time.Minute
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultPollTimeout  = 180 * time.Second
)

// Fixed progress percentages per stage. Processing events are clamped into
// [PercentUploaded, PercentReady].
const (
	PercentPrepare    = 5
	PercentUploaded   = 30
	PercentReady      = 88
	PercentPublishing = 90
	PercentDone       = 100
)
