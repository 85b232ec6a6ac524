package diawi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/log"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultBaseURL is the Diawi upload API root.
	DefaultBaseURL = "https://upload.diawi.com"
	// DefaultTimeout bounds a single Diawi request.
	DefaultTimeout = 60 * time.Second
)

// StatusResponse is the body of a job status query.
type StatusResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Hash    string `json:"hash"`
	Link    string `json:"link"`
	QRCode  string `json:"qrcode"`
}

type jobResponse struct {
	Job string `json:"job"`
}

// Client talks to the Diawi upload API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient ...
func NewClient(baseURL string, httpClient *http.Client, logger log.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewDefaultHTTPClient returns the client used for Diawi requests.
func NewDefaultHTTPClient() *http.Client {
	client := cleanhttp.DefaultClient()
	client.Timeout = DefaultTimeout
	return client
}

// Submit uploads the file at pth and returns the ID of the processing job.
func (c *Client) Submit(token, pth, comment string) (Job, error) {
	f, err := os.Open(pth)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			c.logger.Warnf("Failed to close %s: %s", pth, err)
		}
	}()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("token", token); err != nil {
		return "", err
	}
	if comment != "" {
		if err := writer.WriteField("comment", comment); err != nil {
			return "", err
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(pth))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}
	c.logger.Debugf("diawi upload response: %s", respBody)

	var resp jobResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse diawi upload response: %w", err)
	}
	if resp.Job == "" {
		return "", ErrMissingJob
	}
	return Job(resp.Job), nil
}

// Status queries the processing state of job.
func (c *Client) Status(token string, job Job) (StatusResponse, error) {
	query := url.Values{}
	query.Set("token", token)
	query.Set("job", string(job))

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/status?"+query.Encode(), nil)
	if err != nil {
		return StatusResponse{}, err
	}

	respBody, err := c.do(req)
	if err != nil {
		return StatusResponse{}, err
	}
	c.logger.Debugf("status response: %s", respBody)

	var resp StatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return StatusResponse{}, fmt.Errorf("failed to parse diawi status response: %w", err)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diawi request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Failed to close response body: %s", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read diawi response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("diawi request failed with status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
