package workspace

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/internal/observability/alerting"
)

type fakeWorkspaces struct {
	mu           sync.Mutex
	inventory    []Inventory
	reports      map[string]StatusReport
	statusErr    map[string]error
	listErr      error
	stopErr      error
	provisionErr error
	stopped      []string
	provisioned  []ai.ResourceEstimate
	provisionIDs []string
}

func (f *fakeWorkspaces) List(context.Context) ([]Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Inventory(nil), f.inventory...), nil
}

func (f *fakeWorkspaces) Status(_ context.Context, id string) (StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[id]; err != nil {
		return StatusReport{}, err
	}
	return f.reports[id], nil
}

func (f *fakeWorkspaces) Stop(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeWorkspaces) Provision(_ context.Context, id, _ string, limits ai.ResourceEstimate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return f.provisionErr
	}
	f.provisioned = append(f.provisioned, limits)
	f.provisionIDs = append(f.provisionIDs, id)
	return nil
}

type countingDispatcher struct {
	calls atomic.Int32
}

func (d *countingDispatcher) Notify(context.Context, alerting.Alert) error {
	d.calls.Add(1)
	return nil
}

type failingCost struct{}

func (failingCost) OptimizeResources(context.Context, ai.CostRequest) (ai.CostPlan, error) {
	return ai.CostPlan{}, errors.New("model unavailable")
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestOptimizer(cfg Config, ws *fakeWorkspaces, opts ...Option) (*Optimizer, *event.Recorder) {
	rec := event.NewRecorder()
	opts = append([]Option{
		WithRecorder(rec),
		WithClock(func() time.Time { return baseTime }),
	}, opts...)
	return NewOptimizer(cfg, ws, opts...), rec
}

func eventsOf(rec *event.Recorder, typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range rec.Recent(1000) {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestCost(t *testing.T) {
	if got := Cost(4, 8, 50); math.Abs(got-0.21) > 1e-9 {
		t.Fatalf("unexpected cost: %v", got)
	}
	if got := Cost(0, 0, 0); got != 0 {
		t.Fatalf("unexpected cost for idle workspace: %v", got)
	}
}

func TestCollectRecordsFailedWorkspaceAsError(t *testing.T) {
	ws := &fakeWorkspaces{
		inventory: []Inventory{
			{ID: "ws-a", Name: "api", Environment: "python"},
			{ID: "ws-b", Name: "web", Environment: "typescript"},
		},
		reports: map[string]StatusReport{
			"ws-a": {Status: "Running", Resources: Usage{CPU: 40, Memory: 20, Disk: 10}, Uptime: 5000, LastAccessed: "2024-05-01T11:00:00Z"},
		},
		statusErr: map[string]error{"ws-b": errors.New("exit status 1")},
	}
	history := NewMemoryHistory(0)
	opt, rec := newTestOptimizer(DefaultConfig(), ws, WithHistory(history))

	got, err := opt.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}

	a, ok := opt.Store().Get("ws-a")
	if !ok || a.Status != StatusRunning || a.CPUUsage != 40 || a.UptimeMs != 5000 {
		t.Fatalf("unexpected snapshot for ws-a: %+v", a)
	}
	if !a.LastAccessed.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last accessed: %v", a.LastAccessed)
	}
	if math.Abs(a.Cost-Cost(40, 20, 10)) > 1e-9 {
		t.Fatalf("unexpected cost: %v", a.Cost)
	}

	b, ok := opt.Store().Get("ws-b")
	if !ok || b.Status != StatusError || b.Environment != "unknown" || b.CPUUsage != 0 || b.Cost != 0 {
		t.Fatalf("unexpected snapshot for ws-b: %+v", b)
	}

	points, _ := history.Recent(context.Background(), SeriesWorkspaces, 10)
	if len(points) != 1 || points[0].Load != 40 {
		t.Fatalf("unexpected history: %+v", points)
	}
	collected := eventsOf(rec, event.ResourcesCollected)
	if len(collected) != 1 || collected[0].Data["count"] != 2 {
		t.Fatalf("unexpected collected events: %+v", collected)
	}
}

func TestCollectKeepsPlaceholdersMissingFromInventory(t *testing.T) {
	ws := &fakeWorkspaces{}
	opt, _ := newTestOptimizer(DefaultConfig(), ws)
	opt.Store().Put(Resource{WorkspaceID: "pending", Environment: "go", Status: StatusProvisioning})

	if _, err := opt.Collect(context.Background()); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if _, ok := opt.Store().Get("pending"); !ok {
		t.Fatalf("expected placeholder to survive collection")
	}
}

func TestCollectReplacesProvisionedPlaceholder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkspacesPerEnvironment = 2
	ws := &fakeWorkspaces{reports: map[string]StatusReport{}}
	opt, _ := newTestOptimizer(cfg, ws)
	ctx := context.Background()

	id, err := opt.Provision(ctx, "python", ProvisionOptions{AutoShutdown: true})
	if err != nil {
		t.Fatalf("Provision returned error: %v", err)
	}
	if len(ws.provisionIDs) != 1 || ws.provisionIDs[0] != id {
		t.Fatalf("expected provisioning command to carry the workspace id, got %v", ws.provisionIDs)
	}

	ws.inventory = []Inventory{{ID: id, Name: "python-" + id, Environment: "python"}}
	ws.reports[id] = StatusReport{Status: "running", Resources: Usage{CPU: 30}}
	if _, err := opt.Collect(ctx); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	total, inEnv := opt.Store().ActiveCounts("python")
	if total != 1 || inEnv != 1 {
		t.Fatalf("expected one active workspace, got total=%d python=%d", total, inEnv)
	}
	r, _ := opt.Store().Get(id)
	if r.CPUUsage != 30 || r.Limits == nil || r.PredictedShutdown == nil {
		t.Fatalf("expected collected snapshot to keep provisioning data: %+v", r)
	}
	if _, err := opt.Provision(ctx, "python", ProvisionOptions{}); err != nil {
		t.Fatalf("second workspace must fit the environment limit: %v", err)
	}
}

func TestCollectDropsPlaceholderMatchedByName(t *testing.T) {
	ws := &fakeWorkspaces{
		inventory: []Inventory{{ID: "devpod-7", Name: "python-abc", Environment: "python"}},
		reports:   map[string]StatusReport{"devpod-7": {Status: "running", Resources: Usage{CPU: 30}}},
	}
	opt, _ := newTestOptimizer(DefaultConfig(), ws)
	opt.Store().Put(Resource{WorkspaceID: "abc", Name: "python-abc", Environment: "python", Status: StatusRunning})

	if _, err := opt.Collect(context.Background()); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if _, ok := opt.Store().Get("abc"); ok {
		t.Fatalf("expected placeholder replaced by the inventoried workspace")
	}
	if total, _ := opt.Store().ActiveCounts("python"); total != 1 {
		t.Fatalf("expected one active workspace, got %d", total)
	}
}

func TestCollectCancelledKeepsSnapshots(t *testing.T) {
	ws := &fakeWorkspaces{
		inventory: []Inventory{{ID: "ws-a", Name: "api", Environment: "python"}},
		statusErr: map[string]error{"ws-a": context.Canceled},
	}
	opt, rec := newTestOptimizer(DefaultConfig(), ws)
	opt.Store().Put(Resource{WorkspaceID: "ws-a", Name: "api", Environment: "python", Status: StatusRunning, CPUUsage: 40})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := opt.Collect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	r, _ := opt.Store().Get("ws-a")
	if r.Status != StatusRunning || r.Environment != "python" || r.CPUUsage != 40 {
		t.Fatalf("snapshot overwritten by cancelled sweep: %+v", r)
	}
	if len(eventsOf(rec, event.ResourcesCollected)) != 0 {
		t.Fatalf("no collection event expected when cancelled")
	}
}

func TestCollectListFailure(t *testing.T) {
	alerts := &countingDispatcher{}
	ws := &fakeWorkspaces{listErr: xerrors.New(xerrors.CodeExternalCommand, "devpod list failed")}
	opt, rec := newTestOptimizer(DefaultConfig(), ws, WithAlerts(alerts))

	if _, err := opt.Collect(context.Background()); !xerrors.HasCode(err, xerrors.CodeExternalCommand) {
		t.Fatalf("expected external command error, got %v", err)
	}
	if alerts.calls.Load() != 1 {
		t.Fatalf("expected one alert, got %d", alerts.calls.Load())
	}
	if len(eventsOf(rec, event.ResourcesCollected)) != 0 {
		t.Fatalf("no collection event expected on failure")
	}
}

func TestCheckIdleStopsOnlyInactiveWorkspaces(t *testing.T) {
	ws := &fakeWorkspaces{}
	opt, rec := newTestOptimizer(DefaultConfig(), ws)
	store := opt.Store()
	store.Put(Resource{WorkspaceID: "idle", Status: StatusRunning, CPUUsage: 2, LastAccessed: baseTime.Add(-2 * time.Hour)})
	store.Put(Resource{WorkspaceID: "busy", Status: StatusRunning, CPUUsage: 80, LastAccessed: baseTime.Add(-2 * time.Hour)})
	store.Put(Resource{WorkspaceID: "recent", Status: StatusRunning, CPUUsage: 1, LastAccessed: baseTime.Add(-30 * time.Minute)})
	store.Put(Resource{WorkspaceID: "stopped", Status: StatusStopped, CPUUsage: 0, LastAccessed: baseTime.Add(-5 * time.Hour)})

	stopped := opt.CheckIdle(context.Background())
	if len(stopped) != 1 || stopped[0] != "idle" {
		t.Fatalf("unexpected stopped workspaces: %v", stopped)
	}
	if len(ws.stopped) != 1 || ws.stopped[0] != "idle" {
		t.Fatalf("unexpected stop commands: %v", ws.stopped)
	}
	if r, _ := store.Get("idle"); r.Status != StatusStopped {
		t.Fatalf("expected idle workspace stopped, got %s", r.Status)
	}
	if r, _ := store.Get("busy"); r.Status != StatusRunning {
		t.Fatalf("busy workspace must keep running, got %s", r.Status)
	}
	shutdowns := eventsOf(rec, event.WorkspaceShutdown)
	if len(shutdowns) != 1 || shutdowns[0].Data["workspace_id"] != "idle" {
		t.Fatalf("unexpected shutdown events: %+v", shutdowns)
	}
}

func TestShutdownFailureMarksError(t *testing.T) {
	ws := &fakeWorkspaces{stopErr: xerrors.New(xerrors.CodeExternalCommand, "devpod stop failed")}
	opt, rec := newTestOptimizer(DefaultConfig(), ws)
	opt.Store().Put(Resource{WorkspaceID: "ws-1", Status: StatusRunning})

	if err := opt.Shutdown(context.Background(), "ws-1", "manual"); err == nil {
		t.Fatalf("expected shutdown error")
	}
	if r, _ := opt.Store().Get("ws-1"); r.Status != StatusError {
		t.Fatalf("expected error status, got %s", r.Status)
	}
	if len(eventsOf(rec, event.WorkspaceShutdown)) != 0 {
		t.Fatalf("no shutdown event expected on failure")
	}
	if err := opt.Shutdown(context.Background(), "missing", "manual"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProvisionEnforcesPerEnvironmentLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkspacesPerEnvironment = 2
	ws := &fakeWorkspaces{}
	opt, rec := newTestOptimizer(cfg, ws)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := opt.Provision(ctx, "python", ProvisionOptions{}); err != nil {
			t.Fatalf("provision %d failed: %v", i, err)
		}
	}
	_, err := opt.Provision(ctx, "python", ProvisionOptions{})
	if !errors.Is(err, ErrCapacityReached) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if got := xerrors.MetadataOf(err, "limit"); got != "max_workspaces_per_environment" {
		t.Fatalf("unexpected limit metadata: %q", got)
	}
	if got := xerrors.MetadataOf(err, "environment"); got != "python" {
		t.Fatalf("unexpected environment metadata: %q", got)
	}
	if _, err := opt.Provision(ctx, "rust", ProvisionOptions{}); err != nil {
		t.Fatalf("other environments must not be affected: %v", err)
	}
	if len(ws.provisioned) != 3 {
		t.Fatalf("expected 3 provision commands, got %d", len(ws.provisioned))
	}
	if len(eventsOf(rec, event.WorkspaceProvisioned)) != 3 {
		t.Fatalf("expected 3 provisioned events")
	}
}

func TestProvisionEnforcesConcurrentLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentWorkspaces = 3
	ws := &fakeWorkspaces{}
	opt, _ := newTestOptimizer(cfg, ws)
	opt.Store().Put(Resource{WorkspaceID: "old", Environment: "go", Status: StatusStopped})

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(env string) {
			defer wg.Done()
			_, err := opt.Provision(context.Background(), env, ProvisionOptions{})
			switch {
			case err == nil:
				ok.Add(1)
			case xerrors.MetadataOf(err, "limit") == "max_concurrent_workspaces":
				rejected.Add(1)
			}
		}([]string{"go", "rust", "nushell", "python"}[i%4])
	}
	wg.Wait()
	if ok.Load() != 3 || rejected.Load() != 7 {
		t.Fatalf("expected 3 accepted and 7 rejected, got %d and %d", ok.Load(), rejected.Load())
	}
}

func TestProvisionClampsPrediction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResourceLimits = ai.ResourceEstimate{CPU: 2, Memory: 32, Disk: 10}
	ws := &fakeWorkspaces{}
	opt, _ := newTestOptimizer(cfg, ws)

	id, err := opt.Provision(context.Background(), "python", ProvisionOptions{AutoShutdown: true})
	if err != nil {
		t.Fatalf("Provision returned error: %v", err)
	}
	want := ai.ResourceEstimate{CPU: 2, Memory: 6, Disk: 10, Network: 2}
	if ws.provisioned[0] != want {
		t.Fatalf("unexpected provisioned limits: %+v", ws.provisioned[0])
	}
	r, ok := opt.Store().Get(id)
	if !ok || r.Status != StatusRunning || r.Name != "python-"+id {
		t.Fatalf("unexpected provisioned snapshot: %+v", r)
	}
	if r.PredictedShutdown == nil || !r.PredictedShutdown.Equal(baseTime.Add(60*time.Minute)) {
		t.Fatalf("unexpected predicted shutdown: %v", r.PredictedShutdown)
	}
	if r.Limits == nil || *r.Limits != want {
		t.Fatalf("unexpected recorded limits: %+v", r.Limits)
	}
}

func TestProvisionFailureReleasesCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkspacesPerEnvironment = 1
	ws := &fakeWorkspaces{provisionErr: xerrors.New(xerrors.CodeExternalCommand, "provision script failed")}
	opt, rec := newTestOptimizer(cfg, ws)

	if _, err := opt.Provision(context.Background(), "go", ProvisionOptions{}); !xerrors.HasCode(err, xerrors.CodeExternalCommand) {
		t.Fatalf("expected external command error, got %v", err)
	}
	resources := opt.Resources()
	if len(resources) != 1 || resources[0].Status != StatusError {
		t.Fatalf("expected one error snapshot, got %+v", resources)
	}
	if len(eventsOf(rec, event.WorkspaceProvisioned)) != 0 {
		t.Fatalf("no provisioned event expected on failure")
	}

	ws.provisionErr = nil
	if _, err := opt.Provision(context.Background(), "go", ProvisionOptions{}); err != nil {
		t.Fatalf("errored workspace must not hold capacity: %v", err)
	}
}

func TestProvisionRequiresEnvironment(t *testing.T) {
	opt, _ := newTestOptimizer(DefaultConfig(), &fakeWorkspaces{})
	if _, err := opt.Provision(context.Background(), "", ProvisionOptions{}); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOptimizeAppliesOnlyLowRiskRecommendations(t *testing.T) {
	ws := &fakeWorkspaces{}
	opt, rec := newTestOptimizer(DefaultConfig(), ws)
	store := opt.Store()
	store.Put(Resource{WorkspaceID: "w1", Status: StatusRunning, CPUUsage: 3, MemoryUsage: 40, Cost: 1})
	store.Put(Resource{WorkspaceID: "w2", Status: StatusRunning, CPUUsage: 50, MemoryUsage: 90, Cost: 2})
	store.Put(Resource{WorkspaceID: "w3", Status: StatusRunning, CPUUsage: 12, MemoryUsage: 30, Cost: 1})
	store.Put(Resource{WorkspaceID: "w4", Status: StatusRunning, CPUUsage: 12, MemoryUsage: 30, Cost: 1})

	plan, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if plan.PlanID == "" {
		t.Fatalf("expected plan id")
	}

	actions := map[ai.Action]ai.RiskLevel{}
	for _, r := range plan.Recommendations {
		actions[r.Action] = r.RiskLevel
	}
	if actions[ai.ActionShutdown] != ai.RiskLow || actions[ai.ActionScaleDown] != ai.RiskLow || actions[ai.ActionConsolidate] != ai.RiskMedium {
		t.Fatalf("unexpected recommendations: %+v", plan.Recommendations)
	}
	if want := 1*0.8 + 2*0.3 + 25; math.Abs(plan.TotalSavings-want) > 1e-9 {
		t.Fatalf("unexpected total savings: %v, want %v", plan.TotalSavings, want)
	}
	if len(plan.Applied) != 2 || plan.Applied[0] != "shutdown:w1" || plan.Applied[1] != "scale_down:w2" {
		t.Fatalf("unexpected applied actions: %v", plan.Applied)
	}
	if len(ws.stopped) != 1 || ws.stopped[0] != "w1" {
		t.Fatalf("unexpected stop commands: %v", ws.stopped)
	}
	for _, id := range []string{"w3", "w4"} {
		if r, _ := store.Get(id); r.Status != StatusRunning {
			t.Fatalf("medium risk consolidation must not be applied, %s is %s", id, r.Status)
		}
	}
	if r, _ := store.Get("w2"); r.Limits == nil {
		t.Fatalf("expected scale down to record limits")
	}
	if len(eventsOf(rec, event.WorkspaceOptimizationComplete)) != 1 {
		t.Fatalf("expected optimization complete event")
	}
}

func TestOptimizeSkipsDisabledStages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCostOptimization = false
	cfg.EnablePredictiveScaling = false
	opt, _ := newTestOptimizer(cfg, &fakeWorkspaces{})
	opt.Store().Put(Resource{WorkspaceID: "w1", Status: StatusRunning, CPUUsage: 1})

	plan, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if len(plan.Recommendations) != 0 || plan.TotalSavings != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestOptimizeScalesPoolOnHighLoad(t *testing.T) {
	history := NewMemoryHistory(0)
	for i := 0; i < 5; i++ {
		_ = history.Append(context.Background(), SeriesWorkspaces, ai.HistoryPoint{Timestamp: baseTime, Load: 95})
	}
	cfg := DefaultConfig()
	cfg.EnableCostOptimization = false
	opt, rec := newTestOptimizer(cfg, &fakeWorkspaces{}, WithHistory(history))
	opt.Store().Put(Resource{WorkspaceID: "w1", Status: StatusRunning, CPUUsage: 90})
	opt.Store().Put(Resource{WorkspaceID: "w2", Status: StatusStopped})

	plan, err := opt.Optimize(context.Background())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if len(plan.Applied) != 1 || plan.Applied[0] != "scale_up:*" {
		t.Fatalf("unexpected applied actions: %v", plan.Applied)
	}
	if r, _ := opt.Store().Get("w1"); r.Limits == nil || r.Limits.CPU != 2 {
		t.Fatalf("expected running workspace to scale up, got %+v", r.Limits)
	}
	if r, _ := opt.Store().Get("w2"); r.Limits != nil {
		t.Fatalf("stopped workspace must not scale")
	}
	if len(eventsOf(rec, event.WorkspaceScaled)) != 1 {
		t.Fatalf("expected one scaled event")
	}
}

func TestOptimizeFailureIsWrapped(t *testing.T) {
	alerts := &countingDispatcher{}
	opt, rec := newTestOptimizer(DefaultConfig(), &fakeWorkspaces{}, WithCostOptimizer(failingCost{}), WithAlerts(alerts))

	_, err := opt.Optimize(context.Background())
	if !xerrors.HasCode(err, xerrors.CodeOptimization) {
		t.Fatalf("expected optimization error, got %v", err)
	}
	if alerts.calls.Load() != 1 {
		t.Fatalf("expected one alert, got %d", alerts.calls.Load())
	}
	if len(eventsOf(rec, event.WorkspaceOptimizationComplete)) != 0 {
		t.Fatalf("no completion event expected on failure")
	}
}

func TestScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResourceLimits = ai.ResourceEstimate{CPU: 4, Memory: 32, Disk: 100}
	opt, _ := newTestOptimizer(cfg, &fakeWorkspaces{})
	opt.Store().Put(Resource{WorkspaceID: "w1", Status: StatusRunning, Limits: &ai.ResourceEstimate{CPU: 3, Memory: 8, Disk: 20}})

	up, err := opt.Scale("w1", ScaleUp)
	if err != nil {
		t.Fatalf("Scale up failed: %v", err)
	}
	if *up.Limits != (ai.ResourceEstimate{CPU: 4, Memory: 16, Disk: 40}) {
		t.Fatalf("unexpected limits after scale up: %+v", *up.Limits)
	}
	down, err := opt.Scale("w1", ScaleDown)
	if err != nil {
		t.Fatalf("Scale down failed: %v", err)
	}
	if *down.Limits != (ai.ResourceEstimate{CPU: 2, Memory: 8, Disk: 20}) {
		t.Fatalf("unexpected limits after scale down: %+v", *down.Limits)
	}
	if _, err := opt.Scale("w1", Direction("sideways")); !xerrors.HasCode(err, xerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := opt.Scale("missing", ScaleUp); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
