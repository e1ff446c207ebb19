package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dsgvo-downloader/internal/config"
	"dsgvo-downloader/internal/events"
	"dsgvo-downloader/internal/metrics"
	"dsgvo-downloader/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinDelay smallest pause ever taken between two detail requests
const MinDelay = time.Duration(config.MinDelayMS) * time.Millisecond

// PortalClient remote side of the harvest
type PortalClient interface {
	FetchIncidentList(ctx context.Context) ([]models.IncidentSummary, []byte, error)
	FetchIncidentDetail(ctx context.Context, incidentID int32) (*models.IncidentDetail, error)
}

// IncidentStore persistence side of the harvest
type IncidentStore interface {
	TablesExist(ctx context.Context) (bool, error)
	GetPersistedIDs(ctx context.Context) (map[int32]struct{}, error)
	ArchiveRawList(ctx context.Context, payload []byte) error
	InsertIncident(ctx context.Context, incident *models.Incident) error
}

// EventPublisher receives notifications about committed incidents and finished runs
type EventPublisher interface {
	PublishIncidentStored(ctx context.Context, event events.IncidentStored) error
	PublishRunCompleted(ctx context.Context, event events.RunCompleted) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ReconcilerOptions optional collaborators; zero values select the defaults.
type ReconcilerOptions struct {
	Delay     time.Duration
	Publisher EventPublisher
	Metrics   *metrics.Recorder
	Sleep     SleepFunc
	Now       func() time.Time
	NewRunID  func() string
}

// RunReport outcome of one run
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Listed     int
	Missing    int
	// StoredIDs in commit order
	StoredIDs []int32
	// SkippedIDs incidents the portal reported as not found
	SkippedIDs []int32
}

// Stored number of incidents committed during the run.
func (r *RunReport) Stored() int {
	return len(r.StoredIDs)
}

// Reconciler brings the incidents table in line with the portal: it lists every incident,
// archives the raw list, and fetches and stores the ones not yet persisted, one at a time.
type Reconciler struct {
	client    PortalClient
	store     IncidentStore
	logger    *zap.Logger
	delay     time.Duration
	publisher EventPublisher
	metrics   *metrics.Recorder
	sleep     SleepFunc
	now       func() time.Time
	newRunID  func() string
}

// NewReconciler creates a reconciler. A delay below MinDelay is raised to MinDelay.
func NewReconciler(client PortalClient, store IncidentStore, logger *zap.Logger, opts ReconcilerOptions) *Reconciler {
	r := &Reconciler{
		client:    client,
		store:     store,
		logger:    logger,
		delay:     opts.Delay,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		sleep:     opts.Sleep,
		now:       opts.Now,
		newRunID:  opts.NewRunID,
	}

	if r.delay < MinDelay {
		logger.Warn("Delay below minimum, using minimum instead",
			zap.Duration("requested", r.delay),
			zap.Duration("minimum", MinDelay),
		)
		r.delay = MinDelay
	}
	if r.publisher == nil {
		r.publisher = events.NopPublisher{}
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRecorder()
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}

	return r
}

// Delay effective pause between detail requests.
func (r *Reconciler) Delay() time.Duration {
	return r.delay
}

// Run performs one harvest. The report is returned even when the run fails.
func (r *Reconciler) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     r.newRunID(),
		StartedAt: r.now(),
	}
	log := r.logger.With(zap.String("run_id", report.RunID))

	err := r.run(ctx, log, report)

	report.FinishedAt = r.now()
	r.metrics.RunFinished(err == nil, report.FinishedAt)

	completed := events.RunCompleted{
		RunID:      report.RunID,
		Success:    err == nil,
		Listed:     report.Listed,
		Missing:    report.Missing,
		Stored:     report.Stored(),
		Skipped:    report.SkippedIDs,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if err != nil {
		completed.Error = err.Error()
	}
	if perr := r.publisher.PublishRunCompleted(context.WithoutCancel(ctx), completed); perr != nil {
		log.Warn("Failed to publish run summary", zap.Error(perr))
	}

	if err != nil {
		return report, err
	}

	log.Info("Run completed",
		zap.Int("listed", report.Listed),
		zap.Int("missing", report.Missing),
		zap.Int("stored", report.Stored()),
		zap.Int("skipped", len(report.SkippedIDs)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Reconciler) run(ctx context.Context, log *zap.Logger, report *RunReport) error {
	log.Debug("Verifying tables in database")
	ok, err := r.store.TablesExist(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify tables: %w", err)
	}
	if !ok {
		return models.ErrSchemaMissing
	}

	summaries, err := r.listAndArchive(ctx, log)
	if err != nil {
		return err
	}
	report.Listed = len(summaries)

	log.Debug("Fetching existing incidents")
	persisted, err := r.store.GetPersistedIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted incident ids: %w", err)
	}

	missing := MissingIncidents(summaries, persisted)
	report.Missing = len(missing)
	log.Info("Found new incidents",
		zap.Int("count", len(missing)),
		zap.Int("listed", len(summaries)),
		zap.Int("persisted", len(persisted)),
	)

	for i, summary := range missing {
		if i > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				return fmt.Errorf("interrupted before incident %d: %w", summary.IncidentID, err)
			}
		}

		err := r.processIncident(ctx, log, report.RunID, summary)
		switch {
		case err == nil:
			report.StoredIDs = append(report.StoredIDs, summary.IncidentID)
		case models.IsRecoverable(err):
			log.Warn("Skipping incident not found on portal",
				zap.Int32("incident_id", summary.IncidentID),
				zap.Error(err),
			)
			r.metrics.IncidentSkipped()
			report.SkippedIDs = append(report.SkippedIDs, summary.IncidentID)
		default:
			return fmt.Errorf("failed to process incident %d: %w", summary.IncidentID, err)
		}
	}

	return nil
}

// listAndArchive fetches the list and archives whatever raw body came back before
// looking at the parse result.
func (r *Reconciler) listAndArchive(ctx context.Context, log *zap.Logger) ([]models.IncidentSummary, error) {
	summaries, raw, listErr := r.client.FetchIncidentList(ctx)

	if raw != nil {
		log.Debug("Storing raw response", zap.Int("bytes", len(raw)))
		if err := r.store.ArchiveRawList(ctx, raw); err != nil {
			if listErr != nil {
				return nil, errors.Join(err, listErr)
			}
			return nil, err
		}
		r.metrics.RawArchived()
	}

	if listErr != nil {
		return nil, listErr
	}

	r.metrics.IncidentsListed(len(summaries))
	return summaries, nil
}

func (r *Reconciler) processIncident(ctx context.Context, log *zap.Logger, runID string, summary models.IncidentSummary) error {
	log.Debug("Processing incident", zap.Int32("incident_id", summary.IncidentID))

	started := r.now()
	detail, err := r.client.FetchIncidentDetail(ctx, summary.IncidentID)
	r.metrics.ObserveDetailFetch(r.now().Sub(started))
	if err != nil {
		return err
	}

	incident, err := models.NewIncident(summary, detail)
	if err != nil {
		return err
	}

	if err := r.store.InsertIncident(ctx, incident); err != nil {
		return err
	}
	r.metrics.IncidentStored()

	if err := r.publisher.PublishIncidentStored(ctx, events.NewIncidentStored(runID, incident)); err != nil {
		log.Warn("Failed to publish incident event",
			zap.Int32("incident_id", incident.IncidentID),
			zap.Error(err),
		)
	}
	return nil
}

// MissingIncidents returns the summaries whose id is not persisted, de-duplicated by id
// and in ascending id order.
func MissingIncidents(summaries []models.IncidentSummary, persisted map[int32]struct{}) []models.IncidentSummary {
	seen := make(map[int32]struct{}, len(summaries))
	missing := make([]models.IncidentSummary, 0)
	for _, s := range summaries {
		if _, ok := persisted[s.IncidentID]; ok {
			continue
		}
		if _, dup := seen[s.IncidentID]; dup {
			continue
		}
		seen[s.IncidentID] = struct{}{}
		missing = append(missing, s)
	}

	sort.Slice(missing, func(i, j int) bool {
		return missing[i].IncidentID < missing[j].IncidentID
	})
	return missing
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
