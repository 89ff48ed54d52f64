// Package detector calls an external pose estimation service over HTTP.
//
// The service receives one base64 image per request and answers with the
// frame size and a COCO-ordered keypoint list per detected subject.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/liftsense/internal/domain/pose"
)

// Default client configuration constants.
const (
	DefaultTimeout       = 2 * time.Second
	maxErrorBodyBytes    = 512
	maxResponseBodyBytes = 1 << 20
)

// Option applies a configuration option to the HTTPDetector.
type Option func(*HTTPDetector)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPDetector) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPDetector) {
		if c != nil {
			h.client = c
		}
	}
}

// HTTPDetector implements pose detection against a remote JSON endpoint.
type HTTPDetector struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPDetector creates a detector client for the given endpoint URL.
func NewHTTPDetector(url string, opts ...Option) *HTTPDetector {
	h := &HTTPDetector{
		url:     url,
		timeout: DefaultTimeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectSubject struct {
	Keypoints [][3]float64 `json:"keypoints"`
}

type detectResponse struct {
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Subjects []detectSubject `json:"subjects"`
}

// Detect sends one image and returns the detected subjects.
func (h *HTTPDetector) Detect(ctx context.Context, image []byte) (pose.Detection, error) {
	if h.url == "" {
		return pose.Detection{}, fmt.Errorf("%w: %w", ErrDetect, ErrNoEndpoint)
	}

	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return pose.Detection{}, fmt.Errorf("%w: marshaling request: %w", ErrDetect, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return pose.Detection{}, fmt.Errorf("%w: building request: %w", ErrDetect, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return pose.Detection{}, fmt.Errorf("%w: %w", ErrDetect, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return pose.Detection{}, fmt.Errorf("%w: status %d: %s", ErrDetect, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out detectResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&out); err != nil {
		return pose.Detection{}, fmt.Errorf("%w: parsing response: %w", ErrDetect, err)
	}

	return out.toDetection(), nil
}

func (r detectResponse) toDetection() pose.Detection {
	d := pose.Detection{Width: r.Width, Height: r.Height}
	if len(r.Subjects) == 0 {
		return d
	}
	d.Subjects = make([]pose.JointSample, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		kps := make([]pose.Keypoint, len(s.Keypoints))
		for i, kp := range s.Keypoints {
			kps[i] = pose.Keypoint{X: kp[0], Y: kp[1], Confidence: kp[2]}
		}
		d.Subjects = append(d.Subjects, pose.FromKeypoints(kps))
	}
	return d
}
