package events

import (
	"context"
	"fmt"
	"time"

	rediscommon "dsgvo-downloader/common/redis"
	"dsgvo-downloader/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// DefaultStream stream that receives harvest events
	DefaultStream = "dsgvo:incidents"

	TypeIncidentStored = "incident_stored"
	TypeRunCompleted   = "run_completed"
)

// IncidentStored emitted after an incident row has been committed
type IncidentStored struct {
	RunID        string `json:"run_id"`
	IncidentID   int32  `json:"incident_id"`
	Country      string `json:"country"`
	Published    int32  `json:"published"`
	ModifiedDate string `json:"modified_date"`
}

// NewIncidentStored builds the event for a committed incident.
func NewIncidentStored(runID string, incident *models.Incident) IncidentStored {
	return IncidentStored{
		RunID:        runID,
		IncidentID:   incident.IncidentID,
		Country:      incident.Country,
		Published:    incident.Published,
		ModifiedDate: incident.ModifiedDate.String(),
	}
}

// RunCompleted emitted once at the end of every run, successful or not
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Listed     int       `json:"listed"`
	Missing    int       `json:"missing"`
	Stored     int       `json:"stored"`
	Skipped    []int32   `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// StreamPublisher appends events to a Redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamPublisher creates a publisher for the given stream (DefaultStream when empty).
func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *StreamPublisher) PublishIncidentStored(ctx context.Context, event IncidentStored) error {
	return p.publish(ctx, TypeIncidentStored, event)
}

func (p *StreamPublisher) PublishRunCompleted(ctx context.Context, event RunCompleted) error {
	return p.publish(ctx, TypeRunCompleted, event)
}

func (p *StreamPublisher) publish(ctx context.Context, eventType string, data interface{}) error {
	id, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, eventType, data)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	p.logger.Debug("Published event",
		zap.String("stream", p.stream),
		zap.String("type", eventType),
		zap.String("message_id", id),
	)
	return nil
}

// NopPublisher discards every event; used when Redis is not configured
type NopPublisher struct{}

func (NopPublisher) PublishIncidentStored(context.Context, IncidentStored) error { return nil }

func (NopPublisher) PublishRunCompleted(context.Context, RunCompleted) error { return nil }
