package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Client is the transport contract for a single chunk: store a named
// payload and get back a stable, fetchable URL, or retrieve the exact
// bytes behind a previously returned URL.
type Client interface {
	Upload(ctx context.Context, endpoint, name string, payload io.Reader) (string, error)
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// TransportError reports a non-success response from an endpoint.
type TransportError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s returned %s", e.URL, e.Status)
}

// WebhookClient uploads chunks as message attachments through webhook
// endpoints and downloads them back by plain GET on the attachment URL.
type WebhookClient struct {
	httpClient *http.Client
}

// NewWebhookClient creates a webhook client with the given request timeout.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// webhookResponse is the slice of the platform envelope we depend on:
// one attachment per uploaded file, each with a fetchable URL.
type webhookResponse struct {
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
}

// Upload posts the payload as a multipart file attachment and returns
// the URL the endpoint assigned to it.
func (c *WebhookClient) Upload(ctx context.Context, endpoint, name string, payload io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, payload); err != nil {
		return "", fmt.Errorf("failed to read chunk payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	target, err := waitURL(endpoint)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", &TransportError{URL: endpoint, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("failed to decode webhook response: %w", err)
	}
	if len(wr.Attachments) == 0 {
		return "", fmt.Errorf("webhook response from %s contains no attachments", endpoint)
	}

	return wr.Attachments[0].URL, nil
}

// Fetch retrieves the bytes behind a chunk locator. The caller owns the
// returned body and must close it.
func (c *WebhookClient) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &TransportError{URL: locator, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp.Body, nil
}

// waitURL appends wait=true so the endpoint responds with the final
// attachment envelope instead of accepting the upload asynchronously.
func waitURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
