package slack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/log"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

const unknownError = "Unknown error"

var (
	// ErrMissingUploadURL is returned when an upload slot response has no upload URL.
	ErrMissingUploadURL = errors.New("missing upload URL in response")
	// ErrMissingFileID is returned when an upload slot response has no file ID.
	ErrMissingFileID = errors.New("missing file ID in response")
)

// UploadSlot is a one-time upload URL and the ID of the file it belongs to.
type UploadSlot struct {
	UploadURL string
	FileID    string
}

// File is the metadata Slack returns for a shared file.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Mimetype   string `json:"mimetype"`
	Size       int64  `json:"size"`
	URLPrivate string `json:"url_private"`
}

type uploadURLResponse struct {
	OK        bool   `json:"ok"`
	UploadURL string `json:"upload_url"`
	FileID    string `json:"file_id"`
	Error     string `json:"error"`
}

type completeUploadFile struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type completeUploadRequest struct {
	Files          []completeUploadFile `json:"files"`
	ChannelID      string               `json:"channel_id"`
	InitialComment string               `json:"initial_comment,omitempty"`
}

type completeUploadResponse struct {
	OK    bool   `json:"ok"`
	File  *File  `json:"file"`
	Files []File `json:"files"`
	Error string `json:"error"`
}

type postMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Client calls the Slack Web API on behalf of a single token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient ...
func NewClient(baseURL, token string, httpClient *http.Client, logger log.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetUploadURLExternal requests an upload slot for a file of the given name and size.
func (c *Client) GetUploadURLExternal(filename string, length int64) (UploadSlot, error) {
	form := url.Values{}
	form.Set("filename", filename)
	form.Set("length", strconv.FormatInt(length, 10))

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/files.getUploadURLExternal", strings.NewReader(form.Encode()))
	if err != nil {
		return UploadSlot{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp uploadURLResponse
	if err := c.callAPI(req, &resp); err != nil {
		return UploadSlot{}, err
	}

	if !resp.OK {
		return UploadSlot{}, fmt.Errorf("failed to get upload URL: %s", orUnknown(resp.Error))
	}
	if resp.UploadURL == "" {
		return UploadSlot{}, ErrMissingUploadURL
	}
	if resp.FileID == "" {
		return UploadSlot{}, ErrMissingFileID
	}

	return UploadSlot{UploadURL: resp.UploadURL, FileID: resp.FileID}, nil
}

// UploadToURL sends content as the raw request body to an upload slot URL.
// The slot URL is pre-authorized, so no token is attached.
func (c *Client) UploadToURL(uploadURL string, content []byte) error {
	req, err := http.NewRequest(http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("file upload failed: %w", err)
	}
	defer c.closeBody(resp.Body)

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.logger.Debugf("Failed to drain upload response: %s", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("file upload failed with status: %d", resp.StatusCode)
	}
	return nil
}

// CompleteUploadExternal finalizes an uploaded file and shares it to channelID.
func (c *Client) CompleteUploadExternal(fileID, title, channelID, comment string) (File, error) {
	body, err := json.Marshal(completeUploadRequest{
		Files:          []completeUploadFile{{ID: fileID, Title: title}},
		ChannelID:      channelID,
		InitialComment: comment,
	})
	if err != nil {
		return File{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/files.completeUploadExternal", bytes.NewReader(body))
	if err != nil {
		return File{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	var resp completeUploadResponse
	if err := c.callAPI(req, &resp); err != nil {
		return File{}, err
	}

	if !resp.OK {
		return File{}, fmt.Errorf("failed to complete upload: %s", orUnknown(resp.Error))
	}

	switch {
	case resp.File != nil:
		return *resp.File, nil
	case len(resp.Files) > 0:
		return resp.Files[0], nil
	default:
		return File{ID: fileID, Title: title}, nil
	}
}

// PostMessage posts text to channelID.
func (c *Client) PostMessage(channelID, text string) error {
	body, err := json.Marshal(postMessageRequest{Channel: channelID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	var resp postMessageResponse
	if err := c.callAPI(req, &resp); err != nil {
		return err
	}

	if !resp.OK {
		return fmt.Errorf("failed to send message: %s", orUnknown(resp.Error))
	}
	return nil
}

func (c *Client) callAPI(req *http.Request, v interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack API request failed: %w", err)
	}
	defer c.closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read slack API response: %w", err)
	}

	c.logger.Debugf("%s response (%d): %s", req.URL.Path, resp.StatusCode, body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack API request failed with status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse slack API response: %w", err)
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return unknownError
	}
	return msg
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warnf("Failed to close response body: %s", err)
	}
}
