package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-guardian/internal/models"
)

var ErrNotFound = errors.New("incident not found")

type Filter struct {
	Limit       int
	Offset      int
	Since       *time.Time
	Kind        *models.IncidentKind
	MinSeverity *string // >= this severity (e.g. severe includes severe and critical)
	Outcome     *string
}

type IncidentRepository interface {
	Add(ctx context.Context, inc *models.Incident) error
	UpdateOutcome(ctx context.Context, id, outcome, description string, urgency int) error
	GetByID(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, opts Filter) ([]models.Incident, error)
}
