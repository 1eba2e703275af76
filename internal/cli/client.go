package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/me/autograde/pkg/model"
)

// Client is an HTTP client for the autograde API.
type Client struct {
	BaseURL    string
	Identity   model.Identity
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates an autograde API client acting as id.
func NewClient(baseURL string, id model.Identity, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		Identity:   id,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// apiResponse is the parsed envelope.
type apiResponse struct {
	StatusCode int               `json:"-"`
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// Empty reports whether the server answered without a body (204).
func (r *apiResponse) Empty() bool {
	return r.StatusCode == http.StatusNoContent || len(r.Data) == 0 || string(r.Data) == "null"
}

// do performs an HTTP request and returns the parsed envelope.
func (c *Client) do(method, path string, body any) (*apiResponse, error) {
	url := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		c.Logger.Debug("HTTP request body", "body", string(data))
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Identity.UserID != "" {
		req.Header.Set("X-User-ID", c.Identity.UserID)
		req.Header.Set("X-User-Role", string(c.Identity.Role))
	}

	c.Logger.Debug("HTTP request", "method", method, "url", url, "user", c.Identity.UserID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "body", string(respBody))

	apiResp := apiResponse{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return &apiResp, nil
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", resp.StatusCode, err, string(respBody))
	}

	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}

	return &apiResp, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) (*apiResponse, error) {
	return c.do("GET", path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(path string, body any) (*apiResponse, error) {
	return c.do("POST", path, body)
}

// Put performs a PUT request.
func (c *Client) Put(path string, body any) (*apiResponse, error) {
	return c.do("PUT", path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) (*apiResponse, error) {
	return c.do("DELETE", path, nil)
}

// decode unmarshals the envelope data into dst.
func decode(resp *apiResponse, dst any) error {
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
