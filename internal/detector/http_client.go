package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/kdimtricp/objextract/internal/media"
)

// HTTPDetector posts PNG-encoded frames to a detection service.
type HTTPDetector struct {
	url        string
	threshold  float64
	httpClient *http.Client
}

func NewHTTPDetector(url string, threshold float64, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDetector{
		url:       url,
		threshold: threshold,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type detectResponse struct {
	Detections []struct {
		Box     [4]float64 `json:"box"`
		Score   float64    `json:"score"`
		ClassID int        `json:"class_id"`
	} `json:"detections"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPDetector) Detect(ctx context.Context, frame media.Frame) ([]Detection, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, frame.Image); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var detResp detectResponse
	if err := json.Unmarshal(data, &detResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if detResp.Error != nil {
		return nil, fmt.Errorf("detector error: %s", detResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	detections := make([]Detection, 0, len(detResp.Detections))
	for i, d := range detResp.Detections {
		det := Detection{
			Box: image.Rect(
				int(d.Box[0]), int(d.Box[1]),
				int(d.Box[2]), int(d.Box[3]),
			),
			Score:   d.Score,
			ClassID: d.ClassID,
		}
		if len(d.Mask) > 0 {
			mask, err := png.Decode(bytes.NewReader(d.Mask))
			if err != nil {
				return nil, fmt.Errorf("failed to decode mask of detection %d: %w", i, err)
			}
			det.Mask = mask
		}
		detections = append(detections, det)
	}

	return FilterByScore(detections, c.threshold), nil
}
