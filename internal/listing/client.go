package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/michaelscutari/dredge/internal/entry"
	"github.com/michaelscutari/dredge/internal/pathutil"
)

// Common errors.
var (
	ErrNotFound     = errors.New("listing: path not found")
	ErrUnauthorized = errors.New("listing: unauthorized")
)

// maxPages bounds a single listing so a server that keeps returning the same
// page token cannot loop forever.
const maxPages = 10000

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("listing: %s returned %s", e.URL, e.Status)
}

// Is lets errors.Is match the sentinel errors by status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// Options configures the index client.
type Options struct {
	// BaseURL is the index root, e.g. https://drive.example.com/0:
	BaseURL string

	// Password is sent with every listing request when the index is protected.
	Password string

	// Timeout for individual page requests.
	// Default: 30s
	Timeout time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client lists folders of a drive index over HTTP.
type Client struct {
	base     string
	password string
	client   *http.Client
}

type listRequest struct {
	Password  string `json:"password"`
	PageToken string `json:"page_token"`
	PageIndex int    `json:"page_index"`
}

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Data          struct {
		Files []entry.RawRecord `json:"files"`
	} `json:"data"`
}

// NewClient creates a new index client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("listing: base url must be http or https, got %q", opts.BaseURL)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:     strings.TrimSuffix(opts.BaseURL, "/"),
		password: opts.Password,
		client:   client,
	}, nil
}

// List returns every child of path, following page tokens in order.
func (c *Client) List(ctx context.Context, path, rootID string) ([]entry.RawRecord, error) {
	target := c.folderURL(path, rootID)

	var records []entry.RawRecord
	token := ""
	for page := 0; page < maxPages; page++ {
		resp, err := c.fetchPage(ctx, target, listRequest{
			Password:  c.password,
			PageToken: token,
			PageIndex: page,
		})
		if err != nil {
			return nil, err
		}

		records = append(records, resp.Data.Files...)
		if resp.NextPageToken == "" {
			return records, nil
		}
		token = resp.NextPageToken
	}

	return nil, fmt.Errorf("listing: %s exceeded %d pages", path, maxPages)
}

func (c *Client) fetchPage(ctx context.Context, target string, body listRequest) (*listResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: target}
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", target, err)
	}
	return &out, nil
}

// folderURL keeps the trailing slash the index uses to tell folders from files.
func (c *Client) folderURL(path, rootID string) string {
	return pathutil.DownloadURL(c.base, pathutil.AsFolder(path), rootID)
}
