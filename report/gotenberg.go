package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrRenderFailed is returned when the renderer answers with an error status.
var ErrRenderFailed = errors.New("report: render failed")

// PageOptions controls the chromium paper settings. Sizes are passed through
// to Gotenberg verbatim and accept units such as "100mm" or "4in".
type PageOptions struct {
	Width  string
	Height string
	Margin string
}

// LabelPage is the default page for parcel labels.
var LabelPage = PageOptions{Width: "100mm", Height: "150mm", Margin: "0"}

// Client renders HTML documents through the Gotenberg chromium route.
type Client struct {
	baseURL    string
	page       PageOptions
	httpClient *http.Client
}

// NewClient constructs a client rendering on the given page.
func NewClient(baseURL string, page PageOptions, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		page:    page,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"paperWidth":      c.page.Width,
		"paperHeight":     c.page.Height,
		"marginTop":       c.page.Margin,
		"marginBottom":    c.page.Margin,
		"marginLeft":      c.page.Margin,
		"marginRight":     c.page.Margin,
		"printBackground": "true",
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRenderFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return io.ReadAll(resp.Body)
}
