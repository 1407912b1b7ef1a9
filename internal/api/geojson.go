package api

import (
	"github.com/mr1hm/go-guardian/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"` // null when the incident has no position
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(incidents []models.Incident) FeatureCollection {
	features := make([]Feature, 0, len(incidents))

	for _, inc := range incidents {
		props := map[string]any{
			"id":          inc.ID,
			"kind":        string(inc.Kind),
			"severity":    inc.Severity,
			"description": inc.Description,
			"outcome":     inc.Outcome,
			"detected_at": inc.DetectedAt,
		}
		if inc.FallType != "" {
			props["fall_type"] = inc.FallType
		}
		if inc.Urgency > 0 {
			props["urgency"] = inc.Urgency
		}

		f := Feature{
			Type:       "Feature",
			Properties: props,
		}
		if !inc.NoPosition {
			props["maps_url"] = inc.Position().MapsURL()
			f.Geometry = &Geometry{
				Type:        "Point",
				Coordinates: []float64{inc.Longitude, inc.Latitude},
			}
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
