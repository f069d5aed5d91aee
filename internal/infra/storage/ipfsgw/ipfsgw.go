// Package ipfsgw talks to the pinning gateway that fronts IPFS for the
// workshop network. The gateway echoes back the sha256 of the bytes it
// pinned, which lets callers detect corruption in flight.
package ipfsgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Testiot539/feec-workbench-daemon/internal/infra/anchor"
)

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("storage gateway base url is required")
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

type publishResponse struct {
	IPFSCID  string `json:"ipfs_cid"`
	IPFSLink string `json:"ipfs_link"`
	SHA256   string `json:"sha256"`
	Status   int    `json:"status"`
	Details  string `json:"details"`
}

// Put uploads content to the gateway and returns its content address. The
// same bytes always resolve to the same CID, so repeated uploads are safe.
func (c *Client) Put(ctx context.Context, content []byte) (anchor.PutResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "passport.json")
	if err != nil {
		return anchor.PutResult{}, err
	}
	if _, err := part.Write(content); err != nil {
		return anchor.PutResult{}, err
	}
	if err := writer.Close(); err != nil {
		return anchor.PutResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/publish-to-ipfs", &body)
	if err != nil {
		return anchor.PutResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpDo(req)
	if err != nil {
		return anchor.PutResult{}, fmt.Errorf("storage gateway publish: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return anchor.PutResult{}, fmt.Errorf("storage gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return anchor.PutResult{}, fmt.Errorf("storage gateway publish: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed publishResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return anchor.PutResult{}, fmt.Errorf("storage gateway response: %w", err)
	}
	if parsed.IPFSCID == "" {
		return anchor.PutResult{}, fmt.Errorf("storage gateway returned no cid: %s", strings.TrimSpace(string(respBody)))
	}
	return anchor.PutResult{
		CID:       parsed.IPFSCID,
		SHA256Hex: parsed.SHA256,
		URL:       parsed.IPFSLink,
	}, nil
}
