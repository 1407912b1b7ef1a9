package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

type TrackPoint struct {
	At       time.Time
	Position geo.Point
}

// ReadTrack parses timestamp,lat,lon rows. Timestamps are RFC 3339 or unix
// seconds; a header row is skipped.
func ReadTrack(r io.Reader) ([]TrackPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var track []TrackPoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading track: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], "timestamp") {
			continue
		}

		tp, err := parseTrackRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		track = append(track, tp)
	}
	return track, nil
}

func parseTrackRecord(rec []string) (TrackPoint, error) {
	at, err := parseTimestamp(rec[0])
	if err != nil {
		return TrackPoint{}, err
	}
	lat, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return TrackPoint{}, fmt.Errorf("invalid latitude %q: %w", rec[1], err)
	}
	lon, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return TrackPoint{}, fmt.Errorf("invalid longitude %q: %w", rec[2], err)
	}

	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return TrackPoint{}, err
	}
	return TrackPoint{At: at, Position: p}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
}

func LoadTrack(path string) ([]TrackPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening track: %w", err)
	}
	defer f.Close()
	return ReadTrack(f)
}

// ReplaySource plays a recorded track one point per poll.
type ReplaySource struct {
	mu    sync.Mutex
	track []TrackPoint
	next  int
	loop  bool
}

func NewReplaySource(track []TrackPoint, loop bool) *ReplaySource {
	return &ReplaySource{track: track, loop: loop}
}

func (s *ReplaySource) Name() string { return "replay" }

func (s *ReplaySource) Current(_ context.Context) (geo.Point, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.track) {
		if !s.loop || len(s.track) == 0 {
			return geo.Point{}, false, nil
		}
		s.next = 0
	}
	p := s.track[s.next].Position
	s.next++
	return p, true, nil
}
