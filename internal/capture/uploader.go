package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// UploadResult is the object store's response for a stored frame.
type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ObjectStore uploads a local file under a logical folder key.
// A nil result with an error means the cycle continues local-only.
type ObjectStore interface {
	Upload(ctx context.Context, absPath, folder string) (*UploadResult, error)
}

// HTTPObjectStore talks to the cloud store's upload endpoint with a
// multipart POST. Failures are non-fatal to the caller.
type HTTPObjectStore struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPObjectStore(endpoint, apiKey string, timeout time.Duration) *HTTPObjectStore {
	return &HTTPObjectStore{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPObjectStore) Upload(ctx context.Context, absPath, folder string) (*UploadResult, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("folder", folder); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(absPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upload rejected: %d", resp.StatusCode)
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload response: %w", err)
	}
	return &out, nil
}
