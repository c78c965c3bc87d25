package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"SwarmFlow/internal/config"
	"SwarmFlow/internal/workspace"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Coordinator.MaxAgents != 25 {
		t.Fatalf("unexpected max agents: %d", cfg.Coordinator.MaxAgents)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	content := "coordinator:\n  swarm_id: swarm-a\n  max_agents: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	cc := coordinatorConfig(cfg)
	if cc.SwarmID != "swarm-a" || cc.MaxAgents != 7 {
		t.Fatalf("unexpected coordinator config: %+v", cc)
	}
	if !cc.EnableAIOptimization || !cc.Workspace.EnableCostOptimization {
		t.Fatalf("expected optimization flags to default to enabled")
	}
	if cc.Thresholds.Utilization != 0.7 {
		t.Fatalf("unexpected utilization threshold: %v", cc.Thresholds.Utilization)
	}
	if cc.Workspace.ResourceLimits.CPU != 16 {
		t.Fatalf("unexpected cpu limit: %v", cc.Workspace.ResourceLimits.CPU)
	}
}

func TestBuildAlerts(t *testing.T) {
	if d := buildAlerts(config.AlertingConfig{}); d != nil {
		t.Fatalf("expected no dispatcher without notifiers")
	}
	if d := buildAlerts(config.AlertingConfig{Log: true, WebhookURL: "http://127.0.0.1:1/hook"}); d == nil {
		t.Fatalf("expected dispatcher")
	}
}

func TestBuildHistoryDefaultsToMemory(t *testing.T) {
	store, closeFn, err := buildHistory(context.Background(), config.HistoryConfig{MaxSamples: 10})
	if err != nil {
		t.Fatalf("buildHistory: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*workspace.MemoryHistory); !ok {
		t.Fatalf("expected memory history, got %T", store)
	}
}

func TestBuildPerformanceDefaultsToHeuristic(t *testing.T) {
	cfg := config.Default()
	p, err := buildPerformance(cfg)
	if err != nil || p != nil {
		t.Fatalf("expected nil optimizer for heuristic provider, got %v %v", p, err)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.String() != version+"\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}
