package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// MaxFileSize is the largest file the upload server accepts.
const MaxFileSize = 10 * 1024 * 1024

// ErrFileTooLarge is returned before any request is made for files over MaxFileSize.
var ErrFileTooLarge = errors.New("file size exceeds 10MB limit")

type uploadResponse struct {
	FileURL string `json:"fileUrl"`
	Error   string `json:"error"`
}

// Client uploads files to the chat's file server.
type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates an upload client for the server at baseURL.
func NewClient(baseURL string, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upload url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upload url %q must use http or https", baseURL)
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: time.Minute},
		log:  log,
	}, nil
}

// Upload sends the file at path to /upload and returns the absolute URL it
// is served from, plus whether it is an image.
func (c *Client) Upload(ctx context.Context, path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read file: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", false, ErrFileTooLarge
	}

	mt := mimetype.Detect(data)
	isImage := strings.HasPrefix(mt.String(), "image/")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", false, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", false, fmt.Errorf("write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", false, fmt.Errorf("close form: %w", err)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/upload"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return "", false, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.log.Debug().Str("file", filepath.Base(path)).Str("mime", mt.String()).Int("size", len(data)).Msg("uploading")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	var out uploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", false, fmt.Errorf("upload rejected (http %d): %s", resp.StatusCode, msg)
	}
	if out.FileURL == "" {
		return "", false, fmt.Errorf("upload response has no fileUrl")
	}

	ref, err := url.Parse(out.FileURL)
	if err != nil {
		return "", false, fmt.Errorf("parse fileUrl: %w", err)
	}
	return c.base.ResolveReference(ref).String(), isImage, nil
}
