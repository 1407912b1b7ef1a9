package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/models"
)

func TestReplayTrack_FallThenPostFall(t *testing.T) {
	p1 := north(origin, 10)
	stop := north(p1, 0.2)

	track := []ingestion.TrackPoint{
		{At: t0, Position: origin},
		{At: t0.Add(time.Second), Position: p1},
		{At: t0.Add(2 * time.Second), Position: stop},
	}
	// lying still every 5s afterwards
	for i := 1; i <= 8; i++ {
		track = append(track, ingestion.TrackPoint{At: t0.Add(2*time.Second + time.Duration(i)*5*time.Second), Position: stop})
	}

	res := ReplayTrack(track, detector.DefaultImmobilityConfig(), detector.DefaultFallConfig())
	require.Len(t, res.Events, 2)

	assert.Equal(t, models.IncidentKindFall, res.Events[0].Kind)
	require.NotNil(t, res.Events[0].Fall)
	assert.Equal(t, detector.FallTypeHighSpeed, res.Events[0].Fall.FallType)

	// 30s after the fall is not enough, 35s is
	assert.Equal(t, models.IncidentKindPostFall, res.Events[1].Kind)
	assert.Equal(t, t0.Add(37*time.Second), res.Events[1].At)
	assert.Equal(t, 11, res.Samples)
	assert.Zero(t, res.Rejected)
}

func TestReplayTrack_ImmobilityAndRejects(t *testing.T) {
	var track []ingestion.TrackPoint
	for i := 0; i <= 4; i++ {
		track = append(track, ingestion.TrackPoint{At: t0.Add(time.Duration(i) * 100 * time.Second), Position: origin})
	}
	// out of order
	track = append(track, ingestion.TrackPoint{At: t0, Position: origin})

	res := ReplayTrack(track, detector.DefaultImmobilityConfig(), detector.DefaultFallConfig())
	require.Len(t, res.Events, 1)
	assert.Equal(t, models.IncidentKindImmobility, res.Events[0].Kind)
	assert.Equal(t, t0.Add(400*time.Second), res.Events[0].At)
	assert.Equal(t, 1, res.Rejected)
}
