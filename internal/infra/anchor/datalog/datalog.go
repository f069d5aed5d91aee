// Package datalog posts storage addresses to the ledger bridge, which
// wraps them in a datalog extrinsic and returns the transaction hash.
package datalog

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
		return nil, errors.New("ledger bridge base url is required")
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

type submitRequest struct {
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type submitResponse struct {
	TxHash  string `json:"tx_hash"`
	Details string `json:"details"`
}

// Submit records address on the ledger and returns the transaction hash.
func (c *Client) Submit(ctx context.Context, address string, meta map[string]string) (string, error) {
	body, err := json.Marshal(submitRequest{Content: address, Meta: meta})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/datalog", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return "", fmt.Errorf("ledger submit: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ledger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ledger submit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("ledger response: %w", err)
	}
	if parsed.TxHash == "" {
		return "", fmt.Errorf("ledger returned no transaction hash: %s", strings.TrimSpace(string(respBody)))
	}
	return parsed.TxHash, nil
}
