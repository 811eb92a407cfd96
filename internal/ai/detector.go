package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Request identifies the frame a detector should analyze. Local detectors
// read LocalPath; the cloud detector fetches ImageURL.
type Request struct {
	ImageURL  string `json:"imageUrl,omitempty"`
	LocalPath string `json:"localPath,omitempty"`
	CameraID  string `json:"cameraId"`
	EdgeID    string `json:"edgeId"`
}

// Response is one detector's hazard estimate. Fields are pointers because
// a detector may legitimately return partial results; fusion fills the
// gaps field-wise.
type Response struct {
	PeopleCount *float64 `json:"peopleCount"`
	FireProb    *float64 `json:"fireProb"`
	SmokeProb   *float64 `json:"smokeProb"`
}

// Detector is a remote hazard estimator. Any failure (timeout, HTTP error,
// malformed body) is reported as an error and treated as a null result.
type Detector interface {
	Detect(ctx context.Context, req Request) (*Response, error)
}

// HTTPDetector posts the request as JSON with a bearer token.
type HTTPDetector struct {
	Name     string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

func NewHTTPDetector(name, endpoint, apiKey string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		Name:     name,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s detector: %w", d.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s detector returned %d", d.Name, resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s detector body: %w", d.Name, err)
	}
	return &out, nil
}
