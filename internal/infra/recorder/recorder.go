// Package recorder controls the camera service that films stage sessions.
// Stopping a recording publishes the footage and returns its content
// addresses, which end up in the unit biography.
package recorder

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
		return nil, errors.New("camera base url is required")
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

type stopResponse struct {
	CIDs    []string `json:"cids"`
	Details string   `json:"details"`
}

func (c *Client) StartRecording(ctx context.Context, unitInternalID string) error {
	_, err := c.post(ctx, "/recording/start", unitInternalID)
	return err
}

func (c *Client) StopRecording(ctx context.Context, unitInternalID string) ([]string, error) {
	body, err := c.post(ctx, "/recording/stop", unitInternalID)
	if err != nil {
		return nil, err
	}
	var parsed stopResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("camera response: %w", err)
	}
	return parsed.CIDs, nil
}

func (c *Client) post(ctx context.Context, path, unitInternalID string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"unit_internal_id": unitInternalID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("camera request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("camera response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("camera request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
