// Package printer drives the label printer service attached to the
// workbench. All printing is best effort; callers log failures and move on.
package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("printer base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
	}, nil
}

func (c *Client) PrintBarcode(ctx context.Context, internalID, annotation string) error {
	return c.post(ctx, "/print/barcode", map[string]string{
		"content":    internalID,
		"annotation": annotation,
	})
}

func (c *Client) PrintQR(ctx context.Context, url, annotation string) error {
	return c.post(ctx, "/print/qr", map[string]string{
		"content":    url,
		"annotation": annotation,
	})
}

func (c *Client) PrintSealTag(ctx context.Context, operatorToken string) error {
	return c.post(ctx, "/print/seal-tag", map[string]string{
		"operator_token": operatorToken,
	})
}

func (c *Client) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpDo(req)
	if err != nil {
		return fmt.Errorf("printer request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("printer request: status %d", resp.StatusCode)
	}
	return nil
}
