// Package types contains the stream protocol messages exchanged with clients.
package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/okian/liftsense/internal/domain/session"
)

// Sentinel kinds for protocol errors.
var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrBadEncoding = errors.New("frame is not valid base64")
)

// FrameRequest is one inbound frame.
type FrameRequest struct {
	Image    string `json:"image"`
	Exercise string `json:"exercise"`
}

// ParseFrame decodes an inbound text message. A JSON object is parsed as a
// FrameRequest; anything else is taken as a bare base64 image.
func ParseFrame(data []byte) (FrameRequest, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return FrameRequest{}, ErrEmptyFrame
	}
	if strings.HasPrefix(trimmed, "{") {
		var req FrameRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return FrameRequest{}, err
		}
		req.Exercise = strings.TrimSpace(req.Exercise)
		return req, nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return FrameRequest{}, err
		}
		return FrameRequest{Image: s}, nil
	}
	return FrameRequest{Image: trimmed}, nil
}

// DecodeImage returns the raw image bytes, accepting an optional data URL prefix.
func (r FrameRequest) DecodeImage() ([]byte, error) {
	payload := strings.TrimSpace(r.Image)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}
	if payload == "" {
		return nil, ErrEmptyFrame
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, errors.Join(ErrBadEncoding, err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}
	return raw, nil
}

// Feedback is one outbound analysis result.
type Feedback struct {
	State     string                `json:"state"`
	Reps      int                   `json:"reps"`
	Velocity  float64               `json:"velocity"`
	RIR       int                   `json:"rir"`
	Feedback  string                `json:"feedback"`
	Keypoints map[string][2]float64 `json:"keypoints"`
}

// NewFeedback builds the outbound message from a session snapshot. Non-finite
// numbers are replaced with 0 so the payload always serializes.
func NewFeedback(snap session.Snapshot, keypoints map[string][2]float64) Feedback {
	var kps map[string][2]float64
	for name, xy := range keypoints {
		if !finite(xy[0]) || !finite(xy[1]) {
			continue
		}
		if kps == nil {
			kps = make(map[string][2]float64, len(keypoints))
		}
		kps[name] = xy
	}
	return Feedback{
		State:     string(snap.Phase),
		Reps:      snap.Reps,
		Velocity:  finiteOrZero(snap.Velocity),
		RIR:       snap.RIR,
		Feedback:  snap.Feedback,
		Keypoints: kps,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteOrZero(f float64) float64 {
	if !finite(f) {
		return 0
	}
	return f
}
