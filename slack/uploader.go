package slack

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bitrise-io/go-utils/log"
	"github.com/dustin/go-humanize"

	"github.com/bitrise-steplib/bitrise-step-slack-artifact-upload/artifact"
)

// CommitAnnotator provides the commit block appended to an upload comment.
type CommitAnnotator interface {
	Annotation(enabled bool) string
}

// Uploader shares build artifacts to Slack channels.
type Uploader struct {
	baseURL    string
	httpClient *http.Client
	annotator  CommitAnnotator
	logger     log.Logger
}

// NewUploader ...
func NewUploader(baseURL string, httpClient *http.Client, annotator CommitAnnotator, logger log.Logger) *Uploader {
	return &Uploader{
		baseURL:    baseURL,
		httpClient: httpClient,
		annotator:  annotator,
		logger:     logger,
	}
}

// Deliver uploads the request's artifact and shares it to the request's channel.
// It stops at the first failing step: no transfer without an upload slot and
// no finalize after a failed transfer.
func (u *Uploader) Deliver(req UploadRequest) (File, error) {
	pth := req.ArtifactPath()
	u.logger.Printf("Uploading file: %s", pth)

	info, err := os.Stat(pth)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	client := NewClient(u.baseURL, req.Token(), u.httpClient, u.logger)

	slot, err := client.GetUploadURLExternal(filepath.Base(pth), info.Size())
	if err != nil {
		return File{}, err
	}
	u.logger.Debugf("Got upload slot for file: %s", slot.FileID)

	content, err := os.ReadFile(pth)
	if err != nil {
		return File{}, fmt.Errorf("failed to read artifact: %w", err)
	}

	if err := client.UploadToURL(slot.UploadURL, content); err != nil {
		return File{}, err
	}

	title := artifact.Title(pth, req.DisplayName())
	comment := composeComment(req.Message(), u.annotator.Annotation(req.IncludeCommit()))

	file, err := client.CompleteUploadExternal(slot.FileID, title, req.ChannelID(), comment)
	if err != nil {
		return File{}, err
	}

	u.logger.Donef("File uploaded successfully! Details:")
	u.logger.Printf("- ID: %s", file.ID)
	u.logger.Printf("- Name: %s", file.Name)
	u.logger.Printf("- Title: %s", file.Title)
	u.logger.Printf("- Mimetype: %s", file.Mimetype)
	u.logger.Printf("- Size: %s", humanize.Bytes(uint64(file.Size)))
	u.logger.Printf("- URL: %s", file.URLPrivate)

	return file, nil
}

// PostMessage posts a plain text message to channelID.
func (u *Uploader) PostMessage(token, channelID, text string) error {
	return NewClient(u.baseURL, token, u.httpClient, u.logger).PostMessage(channelID, text)
}

func composeComment(message, annotation string) string {
	if annotation == "" {
		return message
	}
	if message == "" {
		return annotation
	}
	return message + "\n" + annotation
}
