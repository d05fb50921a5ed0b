package daemon

import (
	"context"
	"testing"

	"apflow/internal/api"
	"apflow/internal/coding"
	"apflow/internal/config"
	"apflow/internal/pomatch"
	"apflow/internal/risk"
	"apflow/internal/store"
	"apflow/internal/testsupport"
	"apflow/internal/validation"
	"apflow/internal/workflow"
)

func newTestDaemon(t *testing.T, cfg *config.Config, st *store.Store) *Daemon {
	t.Helper()

	escalator := workflow.NewEscalator(st, nil, nil)
	driver := workflow.NewDriver(st, escalator, nil,
		validation.New(st, cfg),
		pomatch.New(st, cfg),
		coding.New(st, cfg),
		risk.New(st, cfg),
	)
	manager := workflow.NewManager(cfg, st, driver, nil)
	svc := api.NewService(st, nil)

	d, err := New(cfg, st, nil, manager, svc)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d := newTestDaemon(t, cfg, st)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("daemon should be running")
	}

	status := d.Status()
	if !status.Running || !status.WorkflowRunning {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.APIAddress == "" {
		t.Fatal("expected bound api address")
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should be stopped")
	}
	d.Stop() // idempotent
}

func TestSecondInstanceCannotAcquireLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := newTestDaemon(t, cfg, st)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second := newTestDaemon(t, cfg, st)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must not start on the same lock")
	}
}
