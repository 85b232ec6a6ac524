package slack

import (
	"errors"
	"path/filepath"
)

// RequestConfig holds the fields of an UploadRequest.
type RequestConfig struct {
	ChannelID     string
	Token         string
	ArtifactPath  string
	DisplayName   string
	Message       string
	IncludeCommit bool
}

// UploadRequest describes a single artifact delivery. It is read-only once built.
type UploadRequest struct {
	channelID     string
	token         string
	artifactPath  string
	displayName   string
	message       string
	includeCommit bool
}

// NewUploadRequest validates cfg and returns the request it describes.
func NewUploadRequest(cfg RequestConfig) (UploadRequest, error) {
	if cfg.ChannelID == "" {
		return UploadRequest{}, errors.New("channel ID is required")
	}
	if cfg.Token == "" {
		return UploadRequest{}, errors.New("token is required")
	}
	if cfg.ArtifactPath == "" {
		return UploadRequest{}, errors.New("artifact path is required")
	}

	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = filepath.Base(cfg.ArtifactPath)
	}

	return UploadRequest{
		channelID:     cfg.ChannelID,
		token:         cfg.Token,
		artifactPath:  cfg.ArtifactPath,
		displayName:   displayName,
		message:       cfg.Message,
		includeCommit: cfg.IncludeCommit,
	}, nil
}

// ChannelID ...
func (r UploadRequest) ChannelID() string { return r.channelID }

// Token ...
func (r UploadRequest) Token() string { return r.token }

// ArtifactPath ...
func (r UploadRequest) ArtifactPath() string { return r.artifactPath }

// DisplayName ...
func (r UploadRequest) DisplayName() string { return r.displayName }

// Message ...
func (r UploadRequest) Message() string { return r.message }

// IncludeCommit ...
func (r UploadRequest) IncludeCommit() bool { return r.includeCommit }
