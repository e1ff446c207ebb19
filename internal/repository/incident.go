package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dsgvo-downloader/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	// IncidentsTable normalized incident rows
	IncidentsTable = "incidents"
	// HistoryTable append-only archive of raw list payloads
	HistoryTable = "incident_history"

	pqUniqueViolation = "23505"
)

// RequiredTables tables that must be provisioned before a run
var RequiredTables = []string{IncidentsTable, HistoryTable}

// IncidentRepository incident storage on PostgreSQL
type IncidentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(db *sql.DB, logger *zap.Logger) *IncidentRepository {
	return &IncidentRepository{
		db:     db,
		logger: logger,
	}
}

// TablesExist reports whether every table in RequiredTables exists in the public schema.
func (r *IncidentRepository) TablesExist(ctx context.Context) (bool, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name::text = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(RequiredTables))
	if err != nil {
		return false, fmt.Errorf("%w: failed to verify tables: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("%w: failed to scan table name: %v", models.ErrStorage, err)
		}
		found = append(found, name)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("%w: failed to verify tables: %v", models.ErrStorage, err)
	}

	r.logger.Debug("Found tables in database",
		zap.Int("count", len(found)),
		zap.Strings("tables", found),
		zap.Strings("expected", RequiredTables),
	)

	return len(found) == len(RequiredTables), nil
}

// GetPersistedIDs returns every incident_id currently stored.
func (r *IncidentRepository) GetPersistedIDs(ctx context.Context) (map[int32]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT incident_id FROM incidents`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch existing incident IDs: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	ids := make(map[int32]struct{})
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan incident_id: %v", models.ErrStorage, err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to fetch existing incident IDs: %v", models.ErrStorage, err)
	}

	r.logger.Debug("Found existing incident ids", zap.Int("count", len(ids)))
	return ids, nil
}

// ArchiveRawList appends one row to incident_history.
// A payload that is not valid JSON is stored as a JSON string holding the verbatim body.
func (r *IncidentRepository) ArchiveRawList(ctx context.Context, payload []byte) error {
	content, err := archiveContent(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to encode raw response: %v", models.ErrStorage, err)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO incident_history (content) VALUES ($1::jsonb)`,
		content,
	); err != nil {
		return fmt.Errorf("%w: failed to store raw response: %v", models.ErrStorage, err)
	}

	r.logger.Debug("Stored raw incident history", zap.Int("bytes", len(content)))
	return nil
}

// InsertIncident writes one incident row in its own transaction. An existing incident_id
// yields models.ErrConflict; rows are never overwritten.
func (r *IncidentRepository) InsertIncident(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (
			incident_id, org_publish_date, modified_date, published, publish_date,
			affected_obj, affected_type, country, details_text, tags, href,
			"references", incident_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction for incident %d: %v", models.ErrStorage, incident.IncidentID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, query,
		incident.IncidentID,
		incident.OrgPublishDate.Time,
		incident.ModifiedDate.Time,
		incident.Published,
		incident.PublishDate.Time,
		incident.AffectedObj,
		incident.AffectedType,
		incident.Country,
		incident.DetailsText,
		incident.Tags,
		incident.Href,
		string(incident.References),
		incident.IncidentText,
	); err != nil {
		return classifyWriteError(err, incident.IncidentID)
	}

	if err := tx.Commit(); err != nil {
		return classifyWriteError(err, incident.IncidentID)
	}

	r.logger.Info("Successfully stored incident", zap.Int32("incident_id", incident.IncidentID))
	return nil
}

func classifyWriteError(err error, incidentID int32) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%w: incident %d", models.ErrConflict, incidentID)
	}
	return fmt.Errorf("%w: failed to store incident %d: %v", models.ErrStorage, incidentID, err)
}

func archiveContent(payload []byte) (string, error) {
	if json.Valid(payload) {
		return string(payload), nil
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
