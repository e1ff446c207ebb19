package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dsgvo-downloader/internal/events"
	"dsgvo-downloader/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeStore in-memory IncidentStore with the same conflict semantics as the repository
type fakeStore struct {
	mu         sync.Mutex
	tables     bool
	incidents  map[int32]*models.Incident
	order      []int32
	archive    [][]byte
	archiveErr error
	insertErr  map[int32]error
}

func newFakeStore(ids ...int32) *fakeStore {
	s := &fakeStore{
		tables:    true,
		incidents: make(map[int32]*models.Incident),
		insertErr: make(map[int32]error),
	}
	for _, id := range ids {
		s.incidents[id] = &models.Incident{IncidentID: id}
	}
	return s
}

func (s *fakeStore) TablesExist(ctx context.Context) (bool, error) {
	return s.tables, nil
}

func (s *fakeStore) GetPersistedIDs(ctx context.Context) (map[int32]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int32]struct{}, len(s.incidents))
	for id := range s.incidents {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *fakeStore) ArchiveRawList(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archiveErr != nil {
		return s.archiveErr
	}
	s.archive = append(s.archive, append([]byte(nil), payload...))
	return nil
}

func (s *fakeStore) InsertIncident(ctx context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[incident.IncidentID]; err != nil {
		return err
	}
	if _, ok := s.incidents[incident.IncidentID]; ok {
		return fmt.Errorf("%w: incident %d", models.ErrConflict, incident.IncidentID)
	}
	s.incidents[incident.IncidentID] = incident
	s.order = append(s.order, incident.IncidentID)
	return nil
}

func (s *fakeStore) ids() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int32, 0, len(s.incidents))
	for id := range s.incidents {
		ids = append(ids, id)
	}
	return ids
}

// fakePortal serves a fixed list and per-id details or errors
type fakePortal struct {
	summaries   []models.IncidentSummary
	raw         []byte
	listErr     error
	detailErr   map[int32]error
	detailCalls []int32
	listCalls   int
}

func newFakePortal(ids ...int32) *fakePortal {
	p := &fakePortal{detailErr: make(map[int32]error)}
	for _, id := range ids {
		p.summaries = append(p.summaries, summary(id))
	}
	p.raw, _ = json.Marshal(p.summaries)
	return p
}

func (p *fakePortal) FetchIncidentList(ctx context.Context) ([]models.IncidentSummary, []byte, error) {
	p.listCalls++
	if p.listErr != nil {
		return nil, p.raw, p.listErr
	}
	return p.summaries, p.raw, nil
}

func (p *fakePortal) FetchIncidentDetail(ctx context.Context, id int32) (*models.IncidentDetail, error) {
	p.detailCalls = append(p.detailCalls, id)
	if err := p.detailErr[id]; err != nil {
		return nil, err
	}
	return detail(id), nil
}

func summary(id int32) models.IncidentSummary {
	return models.IncidentSummary{
		IncidentID:     id,
		OrgPublishDate: models.NewDate(2023, time.January, 2),
		ModifiedDate:   models.DateTime{Time: time.Date(2023, time.January, 3, 10, 0, 0, 0, time.UTC)},
		Published:      1,
		Country:        "DE",
		IncidentText:   fmt.Sprintf("incident %d", id),
	}
}

func detail(id int32) *models.IncidentDetail {
	return &models.IncidentDetail{
		PublishDate:  models.NewDate(2023, time.January, 4),
		AffectedObj:  fmt.Sprintf("object %d", id),
		AffectedType: "Company",
		DetailsText:  "Beschreibung",
		Tags:         "tag",
		Href:         fmt.Sprintf("https://example.org/%d", id),
		References:   json.RawMessage(`[]`),
	}
}

// sleepRecorder records every requested pause without sleeping
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

// recordingPublisher keeps published events in memory
type recordingPublisher struct {
	stored    []events.IncidentStored
	completed []events.RunCompleted
	err       error
}

func (p *recordingPublisher) PublishIncidentStored(ctx context.Context, e events.IncidentStored) error {
	p.stored = append(p.stored, e)
	return p.err
}

func (p *recordingPublisher) PublishRunCompleted(ctx context.Context, e events.RunCompleted) error {
	p.completed = append(p.completed, e)
	return p.err
}

// MockIncidentStore testify mock of IncidentStore
type MockIncidentStore struct {
	mock.Mock
}

func (m *MockIncidentStore) TablesExist(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockIncidentStore) GetPersistedIDs(ctx context.Context) (map[int32]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int32]struct{}), args.Error(1)
}

func (m *MockIncidentStore) ArchiveRawList(ctx context.Context, payload []byte) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *MockIncidentStore) InsertIncident(ctx context.Context, incident *models.Incident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}
