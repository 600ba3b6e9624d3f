package arr

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

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/sirupsen/logrus"
)

const apiBase = "/api/v3"

// Client talks to one remote catalog instance (Radarr-style movie catalog
// or Sonarr-style show catalog). It is pure request/response: no state
// beyond connection details, no retries.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	kind       models.InstanceKind
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client for the given instance. Every call is bounded
// by timeout.
func NewClient(inst models.Instance, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		name:       inst.Name,
		baseURL:    strings.TrimRight(inst.URL, "/"),
		apiKey:     inst.APIKey,
		kind:       inst.Kind,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// itemPath returns the catalog resource path for the instance kind
func (c *Client) itemPath() string {
	if c.kind == models.KindMovie {
		return apiBase + "/movie"
	}
	return apiBase + "/series"
}

// doRequest performs one authenticated request and decodes the JSON
// response into result when non-nil. Failures map onto the ApiError
// taxonomy.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return &ApiError{Kind: ErrKindServerError, Instance: c.name, Detail: fmt.Sprintf("marshal request: %v", err)}
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	c.logger.WithFields(logrus.Fields{
		"instance": c.name,
		"method":   method,
		"url":      fullURL,
	}).Debug("Making API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return &ApiError{Kind: ErrKindServerError, Instance: c.name, Detail: err.Error()}
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return c.statusError(resp.StatusCode, string(bodyBytes))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &ApiError{Kind: ErrKindServerError, Instance: c.name, Detail: fmt.Sprintf("decode response: %v", err)}
		}
	}

	return nil
}

func (c *Client) transportError(err error) error {
	kind := ErrKindServerError
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		kind = ErrKindTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrKindTimeout
	}
	return &ApiError{Kind: kind, Instance: c.name, Detail: err.Error()}
}

func (c *Client) statusError(status int, body string) error {
	kind := ErrKindServerError
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrKindUnauthorized
	case status == http.StatusNotFound:
		kind = ErrKindNotFound
	}
	detail := strings.TrimSpace(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	return &ApiError{Kind: kind, Instance: c.name, Status: status, Detail: detail}
}

// Ping verifies connectivity and credentials against the system status
// endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, apiBase+"/system/status", nil, nil, nil)
}
