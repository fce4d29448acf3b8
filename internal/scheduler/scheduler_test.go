package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/platform/config"
)

type fakeGuard struct {
	released bool
}

func (g *fakeGuard) Release(_ context.Context) error {
	g.released = true

	return nil
}

type fakeStore struct {
	mu sync.Mutex

	tenants  []domain.Tenant
	guardErr map[string]error
	guards   []*fakeGuard

	pending    []domain.DetectedLead
	pendingErr error
	states     map[string]domain.DownstreamState
}

func (f *fakeStore) ListActiveTenants(_ context.Context) ([]domain.Tenant, error) {
	return f.tenants, nil
}

func (f *fakeStore) GetTenant(_ context.Context, tenantID string) (domain.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == tenantID {
			return t, nil
		}
	}

	return domain.Tenant{}, apperrors.ErrNotFound
}

func (f *fakeStore) AcquireRunGuard(_ context.Context, tenantID string) (Guard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardErr[tenantID]; err != nil {
		return nil, err
	}

	g := &fakeGuard{}
	f.guards = append(f.guards, g)

	return g, nil
}

func (f *fakeStore) ListPendingLeads(_ context.Context, _ time.Duration, _ int) ([]domain.DetectedLead, error) {
	return f.pending, f.pendingErr
}

func (f *fakeStore) SetDownstreamState(_ context.Context, leadID string, state domain.DownstreamState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.states == nil {
		f.states = make(map[string]domain.DownstreamState)
	}

	f.states[leadID] = state

	return nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (r *fakeRunner) Run(_ context.Context, tenant domain.Tenant) (*domain.RunLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, tenant.ID)

	return &domain.RunLog{TenantID: tenant.ID}, r.err
}

type fakeForwarder struct {
	mu        sync.Mutex
	forwarded []string
	failFor   map[string]error
}

func (f *fakeForwarder) Forward(_ context.Context, lead domain.DetectedLead) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failFor[lead.ID]; err != nil {
		return err
	}

	f.forwarded = append(f.forwarded, lead.ID)

	return nil
}

func newScheduler(store *fakeStore, runner *fakeRunner, forwarder *fakeForwarder) *Scheduler {
	logger := zerolog.Nop()
	cfg := &config.Config{
		PipelineCron:         "0 * * * *",
		RetryCron:            "*/30 * * * *",
		RetryGrace:           15 * time.Minute,
		MaxConcurrentTenants: 2,
		GuardAcquireTimeout:  time.Second,
	}

	return New(cfg, store, runner, forwarder, &logger)
}

func TestRunAll(t *testing.T) {
	store := &fakeStore{tenants: []domain.Tenant{
		{ID: "t1", Active: true},
		{ID: "t2", Active: true},
		{ID: "t3", Active: true},
	}}
	runner := &fakeRunner{}

	err := newScheduler(store, runner, &fakeForwarder{}).RunAll(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, runner.ran)

	// Every guard taken was released.
	require.Len(t, store.guards, 3)

	for _, g := range store.guards {
		assert.True(t, g.released)
	}
}

func TestRunAllSkipsHeldGuard(t *testing.T) {
	store := &fakeStore{
		tenants: []domain.Tenant{
			{ID: "t1", Active: true},
			{ID: "t2", Active: true},
		},
		guardErr: map[string]error{"t1": apperrors.ErrRunGuardHeld},
	}
	runner := &fakeRunner{}

	err := newScheduler(store, runner, &fakeForwarder{}).RunAll(context.Background())
	require.NoError(t, err)

	// t1 skipped, not queued; t2 still ran.
	assert.Equal(t, []string{"t2"}, runner.ran)
}

func TestRunAllSurvivesRunnerErrors(t *testing.T) {
	store := &fakeStore{tenants: []domain.Tenant{
		{ID: "t1", Active: true},
		{ID: "t2", Active: true},
	}}
	runner := &fakeRunner{err: errors.New("run log write failed")}

	err := newScheduler(store, runner, &fakeForwarder{}).RunAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, runner.ran, 2)

	for _, g := range store.guards {
		assert.True(t, g.released)
	}
}

func TestRunTenant(t *testing.T) {
	store := &fakeStore{tenants: []domain.Tenant{{ID: "t1", Active: true}}}
	runner := &fakeRunner{}
	s := newScheduler(store, runner, &fakeForwarder{})

	require.NoError(t, s.RunTenant(context.Background(), "t1"))
	assert.Equal(t, []string{"t1"}, runner.ran)
}

func TestRunTenantUnknown(t *testing.T) {
	s := newScheduler(&fakeStore{}, &fakeRunner{}, &fakeForwarder{})

	err := s.RunTenant(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRunTenantInactive(t *testing.T) {
	store := &fakeStore{tenants: []domain.Tenant{{ID: "t1", Active: false}}}
	runner := &fakeRunner{}
	s := newScheduler(store, runner, &fakeForwarder{})

	require.Error(t, s.RunTenant(context.Background(), "t1"))
	assert.Empty(t, runner.ran)
}

func TestSweep(t *testing.T) {
	store := &fakeStore{pending: []domain.DetectedLead{
		{ID: "l1", TenantID: "t1"},
		{ID: "l2", TenantID: "t1"},
	}}
	forwarder := &fakeForwarder{failFor: map[string]error{"l2": errors.New("webhook 500")}}

	newScheduler(store, &fakeRunner{}, forwarder).Sweep(context.Background())

	assert.Equal(t, []string{"l1"}, forwarder.forwarded)
	assert.Equal(t, domain.DownstreamDelivered, store.states["l1"])
	assert.Equal(t, domain.DownstreamFailed, store.states["l2"])
}

func TestSweepWithholdsBelowDeliveryThreshold(t *testing.T) {
	store := &fakeStore{
		tenants: []domain.Tenant{{ID: "t1", Active: true, DownstreamMinConfidence: 95}},
		pending: []domain.DetectedLead{
			{ID: "l1", TenantID: "t1", Confidence: 90},
			{ID: "l2", TenantID: "t1", Confidence: 95},
		},
	}
	forwarder := &fakeForwarder{}

	newScheduler(store, &fakeRunner{}, forwarder).Sweep(context.Background())

	// l1 sits below the tenant's delivery floor: never forwarded, marked
	// failed so it stops cycling through the sweep. l2 clears it.
	assert.Equal(t, []string{"l2"}, forwarder.forwarded)
	assert.Equal(t, domain.DownstreamFailed, store.states["l1"])
	assert.Equal(t, domain.DownstreamDelivered, store.states["l2"])
}

func TestSweepNothingPending(t *testing.T) {
	forwarder := &fakeForwarder{}

	newScheduler(&fakeStore{}, &fakeRunner{}, forwarder).Sweep(context.Background())

	assert.Empty(t, forwarder.forwarded)
}

func TestStartRejectsBadCron(t *testing.T) {
	logger := zerolog.Nop()
	cfg := &config.Config{PipelineCron: "not a cron", RetryCron: "*/30 * * * *"}

	s := New(cfg, &fakeStore{}, &fakeRunner{}, &fakeForwarder{}, &logger)

	require.Error(t, s.Start(context.Background()))
}
