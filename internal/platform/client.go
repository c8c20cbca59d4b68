package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ucext/citizenconnect/internal/logger"
)

// DefaultTimeout bounds a single platform request
const DefaultTimeout = 30 * time.Second

// Client is a thin REST client bound to one API base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL. A nil httpClient gets
// a default with DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// HTTPClient returns the underlying http client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetQuery issues a GET with query parameters
func (c *Client) GetQuery(ctx context.Context, endpoint string, query url.Values, headers map[string]string) ([]byte, error) {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil, headers)
}

// PostForm issues a form encoded POST, the Graph API convention
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) ([]byte, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		h[k] = v
	}
	return c.MakeRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), h)
}

// PostJSON issues a JSON POST
func (c *Client) PostJSON(ctx context.Context, endpoint string, body interface{}, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request body: %w", err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.MakeRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody), h)
}

// MakeRequest makes a request to the API and returns the body of a 2xx answer.
// Non-2xx answers become *APIError.
func (c *Client) MakeRequest(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warnf("error closing response body: %v", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
			Body:       truncate(respBody),
		}
	}

	return respBody, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
