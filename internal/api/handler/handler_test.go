package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecomsync/paysync/internal/api/dto"
	"github.com/ecomsync/paysync/internal/api/storage"
	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/internal/marketplace"
	"github.com/ecomsync/paysync/internal/syncjob"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries map[string]*domain.PaymentEntry
	records map[string]*domain.FailedSyncRecord
	jobs    map[string]*domain.SyncJob
	config  *domain.SellerConfig

	acquireErr   error
	updateErr    error
	saveOrderErr error

	updatedSynced    *bool
	updatedLastError string
	savedOrders      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]*domain.PaymentEntry),
		records: make(map[string]*domain.FailedSyncRecord),
		jobs:    make(map[string]*domain.SyncJob),
		config:  &domain.SellerConfig{Name: "default-seller", IsActive: true},
	}
}

func (s *fakeStore) GetPaymentEntry(_ context.Context, entryID string) (*domain.PaymentEntry, error) {
	entry, ok := s.entries[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return entry, nil
}

func (s *fakeStore) AcquireInProgress(_ context.Context, entryID string) (bool, error) {
	if s.acquireErr != nil {
		return false, s.acquireErr
	}
	entry, ok := s.entries[entryID]
	if !ok || entry.InProgress {
		return false, nil
	}
	entry.InProgress = true
	return true, nil
}

func (s *fakeStore) ClearInProgress(_ context.Context, entryID string) error {
	if entry, ok := s.entries[entryID]; ok {
		entry.InProgress = false
	}
	return nil
}

func (s *fakeStore) ActiveSellerConfig(_ context.Context) (*domain.SellerConfig, error) {
	if s.config == nil {
		return nil, domain.ErrNoActiveConfig
	}
	return s.config, nil
}

func (s *fakeStore) CreateSyncJob(_ context.Context, job *domain.SyncJob) error {
	s.jobs[job.JobID] = job
	return nil
}

func (s *fakeStore) GetSyncJob(_ context.Context, jobID string) (*domain.SyncJob, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeStore) GetFailedSyncRecord(_ context.Context, recordID string) (*domain.FailedSyncRecord, error) {
	record, ok := s.records[recordID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

func (s *fakeStore) UpdateFailedSyncRecord(_ context.Context, recordID string, synced bool, lastError string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updatedSynced = &synced
	s.updatedLastError = lastError
	if record, ok := s.records[recordID]; ok {
		record.Synced = synced
		record.LastError = lastError
	}
	return nil
}

func (s *fakeStore) SaveFetchedOrder(_ context.Context, order *domain.FetchedOrder) error {
	if s.saveOrderErr != nil {
		return s.saveOrderErr
	}
	s.savedOrders = append(s.savedOrders, order.OrderID)
	return nil
}

func (s *fakeStore) ListFailedSyncRecords(_ context.Context, filter storage.RecordFilter) ([]domain.FailedSyncRecord, error) {
	var out []domain.FailedSyncRecord
	for _, record := range s.records {
		if filter.Synced != nil && record.Synced != *filter.Synced {
			continue
		}
		out = append(out, *record)
	}
	return out, nil
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

type fakeFetcher struct {
	err     error
	fetched []string
}

func (f *fakeFetcher) GetOrder(_ context.Context, orderID string) (*marketplace.Order, error) {
	f.fetched = append(f.fetched, orderID)
	if f.err != nil {
		return nil, f.err
	}
	return &marketplace.Order{OrderID: orderID, Status: "Shipped"}, nil
}

type fakeSubscriber struct{}

func (fakeSubscriber) Subscribe(_ context.Context, _ string) (<-chan syncjob.Event, func(), error) {
	events := make(chan syncjob.Event)
	return events, func() {}, nil
}

func setupRouter(t *testing.T, store *fakeStore, publisher *fakePublisher, fetcher *fakeFetcher) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	h := NewSyncHandler(&Dependencies{
		Logger:      slog.New(slog.DiscardHandler),
		Storage:     store,
		Publisher:   publisher,
		Marketplace: fetcher,
		Subscriber:  fakeSubscriber{},
	})

	r := gin.New()
	r.GET("/api/v1/payment-entries/:entry_id", h.GetPaymentEntry)
	r.POST("/api/v1/payment-entries/:entry_id/sync-missing-orders", h.SyncMissingOrders)
	r.POST("/api/v1/payment-entries/:entry_id/fetch-invoice-details", h.FetchInvoiceDetails)
	r.POST("/api/v1/payment-entries/:entry_id/reset", h.ResetInProgress)
	r.GET("/api/v1/jobs/:job_id/progress", h.JobProgress)
	r.GET("/api/v1/failed-sync-records", h.ListFailedSyncRecords)
	r.POST("/api/v1/failed-sync-records/:record_id/retry", h.RetryFailedSyncRecord)
	return r
}

func seedEntry(store *fakeStore, entryID string, inProgress bool) {
	store.entries[entryID] = &domain.PaymentEntry{
		EntryID:     entryID,
		PostingDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		InProgress:  inProgress,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestGetPaymentEntry_NotFound(t *testing.T) {
	router := setupRouter(t, newFakeStore(), &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-entries/PE-404", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSync_Accepted(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", false)
	publisher := &fakePublisher{}
	router := setupRouter(t, store, publisher, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-entries/PE-0001/sync-missing-orders", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.TriggerSyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PE-0001", resp.EntryID)
	assert.Equal(t, domain.JobTypeMissingOrderSync, resp.JobType)
	assert.Equal(t, domain.ChannelName(domain.JobTypeMissingOrderSync, "PE-0001"), resp.Channel)
	assert.Equal(t, domain.JobStatusPending, resp.Status)

	assert.True(t, store.entries["PE-0001"].InProgress)

	require.Len(t, publisher.published, 1)
	var msg domain.JobMessage
	require.NoError(t, json.Unmarshal(publisher.published[0], &msg))
	assert.Equal(t, resp.JobID, msg.JobID)
	assert.Equal(t, domain.JobTypeMissingOrderSync, msg.JobType)
}

func TestTriggerSync_Conflict(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	router := setupRouter(t, store, &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-entries/PE-0001/fetch-invoice-details", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerSync_NoActiveConfig(t *testing.T) {
	store := newFakeStore()
	store.config = nil
	seedEntry(store, "PE-0001", false)
	router := setupRouter(t, store, &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-entries/PE-0001/sync-missing-orders", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, store.entries["PE-0001"].InProgress)
}

func TestTriggerSync_PublishFailureReleasesFlag(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", false)
	publisher := &fakePublisher{err: errors.New("broker down")}
	router := setupRouter(t, store, publisher, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-entries/PE-0001/sync-missing-orders", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, store.entries["PE-0001"].InProgress)
}

func TestResetInProgress(t *testing.T) {
	store := newFakeStore()
	seedEntry(store, "PE-0001", true)
	router := setupRouter(t, store, &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-entries/PE-0001/reset", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.entries["PE-0001"].InProgress)
}

func TestJobProgress_FallsBackToJobRow(t *testing.T) {
	store := newFakeStore()
	store.jobs["0b34a1f2-8a4f-4f6d-9a39-0f6a6f1c2d3e"] = &domain.SyncJob{
		JobID:     "0b34a1f2-8a4f-4f6d-9a39-0f6a6f1c2d3e",
		EntryID:   "PE-0001",
		JobType:   domain.JobTypeMissingOrderSync,
		Status:    domain.JobStatusCompleted,
		Succeeded: 4,
		Failed:    1,
	}
	router := setupRouter(t, store, &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/0b34a1f2-8a4f-4f6d-9a39-0f6a6f1c2d3e/progress", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.JobProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.Equal(t, 4, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
}

func TestJobProgress_InvalidID(t *testing.T) {
	router := setupRouter(t, newFakeStore(), &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid/progress", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryFailedSyncRecord_Success(t *testing.T) {
	store := newFakeStore()
	store.records["FSR-001"] = &domain.FailedSyncRecord{
		RecordID: "FSR-001",
		OrderID:  "171-0000001-0000001",
	}
	fetcher := &fakeFetcher{}
	router := setupRouter(t, store, &fakePublisher{}, fetcher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/failed-sync-records/FSR-001/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.RetryRecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Synced)
	assert.Equal(t, []string{"171-0000001-0000001"}, fetcher.fetched)
	assert.True(t, store.records["FSR-001"].Synced)

	// The fetched order must actually be persisted, not just fetched
	assert.Equal(t, []string{"171-0000001-0000001"}, store.savedOrders)
}

func TestRetryFailedSyncRecord_SaveFailureDoesNotMarkSynced(t *testing.T) {
	store := newFakeStore()
	store.records["FSR-005"] = &domain.FailedSyncRecord{
		RecordID: "FSR-005",
		OrderID:  "171-0000005-0000005",
	}
	store.saveOrderErr = errors.New("disk full")
	router := setupRouter(t, store, &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/failed-sync-records/FSR-005/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, store.records["FSR-005"].Synced)
}

func TestRetryFailedSyncRecord_UsesReplacedOrder(t *testing.T) {
	store := newFakeStore()
	store.records["FSR-002"] = &domain.FailedSyncRecord{
		RecordID:      "FSR-002",
		OrderID:       "171-0000001-0000001",
		ReplacedOrder: "171-0000002-0000002",
	}
	fetcher := &fakeFetcher{}
	router := setupRouter(t, store, &fakePublisher{}, fetcher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/failed-sync-records/FSR-002/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"171-0000002-0000002"}, fetcher.fetched)
	assert.Equal(t, []string{"171-0000002-0000002"}, store.savedOrders)
}

func TestRetryFailedSyncRecord_FetchFailureKeepsError(t *testing.T) {
	store := newFakeStore()
	store.records["FSR-003"] = &domain.FailedSyncRecord{
		RecordID: "FSR-003",
		OrderID:  "171-0000003-0000003",
	}
	fetcher := &fakeFetcher{err: errors.New("order not found upstream")}
	router := setupRouter(t, store, &fakePublisher{}, fetcher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/failed-sync-records/FSR-003/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadGateway, w.Code)
	require.NotNil(t, store.updatedSynced)
	assert.False(t, *store.updatedSynced)
	assert.Equal(t, "order not found upstream", store.updatedLastError)
}

func TestRetryFailedSyncRecord_AlreadySynced(t *testing.T) {
	store := newFakeStore()
	store.records["FSR-004"] = &domain.FailedSyncRecord{
		RecordID: "FSR-004",
		OrderID:  "171-0000004-0000004",
		Synced:   true,
	}
	fetcher := &fakeFetcher{}
	router := setupRouter(t, store, &fakePublisher{}, fetcher)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/failed-sync-records/FSR-004/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fetcher.fetched)
}

func TestListFailedSyncRecords_InvalidSyncedFilter(t *testing.T) {
	router := setupRouter(t, newFakeStore(), &fakePublisher{}, &fakeFetcher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/failed-sync-records?synced=maybe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
