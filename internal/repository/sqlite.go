package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/models"
)

const defaultListLimit = 100

type SQLiteDB struct {
	db *sql.DB
}

var _ IncidentRepository = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// :memory: databases are per-connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			fall_type TEXT,
			severity TEXT NOT NULL,
			severity_rank INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			no_position INTEGER NOT NULL DEFAULT 0,
			description TEXT,
			outcome TEXT NOT NULL,
			urgency INTEGER NOT NULL DEFAULT 0,
			detected_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_detected_at ON incidents(detected_at);
		CREATE INDEX IF NOT EXISTS idx_incidents_kind ON incidents(kind);
		CREATE INDEX IF NOT EXISTS idx_incidents_outcome ON incidents(outcome);
  	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	// databases created before no_position existed
	return s.addColumn("no_position", "INTEGER NOT NULL DEFAULT 0")
}

func (s *SQLiteDB) addColumn(name, decl string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('incidents') WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return fmt.Errorf("error inspecting incidents table: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.db.Exec(`ALTER TABLE incidents ADD COLUMN ` + name + ` ` + decl)
	return err
}

func (s *SQLiteDB) Add(ctx context.Context, inc *models.Incident) error {
	now := time.Now().UTC()
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = now
	}
	if inc.UpdatedAt.IsZero() {
		inc.UpdatedAt = inc.CreatedAt
	}
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = inc.CreatedAt
	}
	if inc.Outcome == "" {
		inc.Outcome = models.OutcomePending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, kind, fall_type, severity, severity_rank, latitude, longitude,
			no_position, description, outcome, urgency, detected_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, string(inc.Kind), inc.FallType, inc.Severity, severityRank(inc.Severity),
		inc.Latitude, inc.Longitude, inc.NoPosition, inc.Description, inc.Outcome, inc.Urgency,
		inc.DetectedAt.UTC(), inc.CreatedAt.UTC(), inc.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting incident %s: %w", inc.ID, err)
	}
	return nil
}

// UpdateOutcome records how a confirmation cycle ended. An empty description
// keeps the stored one.
func (s *SQLiteDB) UpdateOutcome(ctx context.Context, id, outcome, description string, urgency int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET outcome = ?,
			description = CASE WHEN ? = '' THEN description ELSE ? END,
			urgency = ?,
			updated_at = ?
		WHERE id = ?`,
		outcome, description, description, urgency, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("error updating incident %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, selectIncidents+` WHERE id = ?`, id)

	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Incident, error) {
	var (
		where []string
		args  []any
	)

	if opts.Since != nil {
		where = append(where, "detected_at >= ?")
		args = append(args, opts.Since.UTC())
	}
	if opts.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*opts.Kind))
	}
	if opts.MinSeverity != nil {
		where = append(where, "severity_rank >= ?")
		args = append(args, severityRank(*opts.MinSeverity))
	}
	if opts.Outcome != nil {
		where = append(where, "outcome = ?")
		args = append(args, *opts.Outcome)
	}

	query := selectIncidents
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY detected_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

const selectIncidents = `
	SELECT id, kind, fall_type, severity, latitude, longitude, no_position, description,
		outcome, urgency, detected_at, created_at, updated_at
	FROM incidents`

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(sc scanner) (*models.Incident, error) {
	var (
		inc         models.Incident
		kind        string
		fallType    sql.NullString
		description sql.NullString
	)
	err := sc.Scan(&inc.ID, &kind, &fallType, &inc.Severity, &inc.Latitude, &inc.Longitude,
		&inc.NoPosition, &description, &inc.Outcome, &inc.Urgency, &inc.DetectedAt, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inc.Kind = models.IncidentKind(kind)
	inc.FallType = fallType.String
	inc.Description = description.String
	return &inc, nil
}

// unknown severities rank -1 and sort below light
func severityRank(s string) int {
	return detector.Severity(s).Rank()
}
