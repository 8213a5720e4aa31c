// Package video talks to the dedicated video processing host: raw binary
// uploads and transcoding job status.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/progress"
	"slowclaw/internal/publish/xrpc"
)

// Uploader streams a local video to the processing host.
type Uploader struct {
	client *xrpc.Client
	logger *slog.Logger
}

// NewUploader creates an uploader for the video service at endpoint.
func NewUploader(endpoint string, logger *slog.Logger, opts ...xrpc.Option) *Uploader {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = models.DefaultVideoEndpoint
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{
		client: xrpc.New(endpoint, append([]xrpc.Option{xrpc.WithLogger(logger)}, opts...)...),
		logger: logger,
	}
}

// Upload issues one raw-body upload addressed by owning identity and file
// name. On success it reports the uploaded stage before resolving the
// response into either an inline blob or a job handle.
func (u *Uploader) Upload(
	ctx context.Context,
	token *models.ScopedAuthToken,
	did string,
	payload models.VideoPayload,
	report *progress.Reporter,
) (*models.UploadResult, error) {
	file, err := os.Open(payload.Path)
	if err != nil {
		return nil, failure.Wrap(failure.KindUpload, "could not read video file", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, failure.Wrap(failure.KindUpload, "could not read video file", err)
	}

	name := UploadName(payload)
	contentType := payload.ContentType
	if contentType == "" {
		contentType = models.DefaultVideoContentType
	}

	query := url.Values{}
	query.Set("did", did)
	query.Set("name", name)

	resp, err := u.client.Do(ctx, xrpc.Request{
		Method:        http.MethodPost,
		NSID:          models.NSIDUploadVideo,
		Query:         query,
		Token:         tokenValue(token),
		Body:          file,
		ContentLength: info.Size(),
		ContentType:   contentType,
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindUpload, "video upload failed", err)
	}
	if !resp.OK() {
		u.logger.WarnContext(ctx, "video upload rejected",
			"status", resp.Status,
			"name", name,
			"bytes", info.Size(),
		)
		return nil, failure.WithStatus(failure.KindUpload, resp.Status, resp.ErrorMessage())
	}

	report.Report(models.StageUploaded, models.PercentUploaded,
		fmt.Sprintf("Uploaded %s, waiting for processing", name))

	status, err := DecodeJobStatus(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.KindUpload, "malformed upload response", err)
	}
	if models.HasBlob(status.Blob) {
		return &models.UploadResult{Blob: status.Blob}, nil
	}
	if status.JobID == "" {
		return nil, failure.New(failure.KindUpload, "no jobId returned")
	}
	return &models.UploadResult{JobID: status.JobID}, nil
}

// UploadName is the declared file name sent to the processing host.
func UploadName(payload models.VideoPayload) string {
	if name := strings.TrimSpace(payload.Name); name != "" {
		return name
	}
	return filepath.Base(payload.Path)
}
