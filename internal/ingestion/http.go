package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

// fixPayload accepts both short and long coordinate keys.
type fixPayload struct {
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (f fixPayload) point() (geo.Point, bool) {
	lat, lon := f.Lat, f.Lon
	if lat == nil {
		lat = f.Latitude
	}
	if lon == nil {
		lon = f.Longitude
	}
	if lat == nil || lon == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *lat, Lon: *lon}, true
}

func decodeFix(data []byte) (geo.Point, bool, error) {
	var f fixPayload
	if err := json.Unmarshal(data, &f); err != nil {
		return geo.Point{}, false, fmt.Errorf("error decoding fix: %w", err)
	}
	p, ok := f.point()
	return p, ok, nil
}

// HTTPSource polls a URL returning the device's latest fix as JSON.
// 204 No Content means no fix.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Current(ctx context.Context) (geo.Point, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return geo.Point{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, false, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var f fixPayload
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return geo.Point{}, false, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	p, ok := f.point()
	return p, ok, nil
}
