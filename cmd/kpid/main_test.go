package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/kpi-extractor/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	return &common.Config{
		Server: common.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		LLM:    common.LLMConfig{Provider: common.ProviderOpenAI, OpenAIAPIKey: "k"},
		Staging: common.StagingConfig{
			Dir:       filepath.Join(dir, "staging"),
			SweepSpec: "@every 1h",
			MaxAge:    time.Hour,
		},
		Store:  common.StoreConfig{Backend: common.StoreCSV, Path: filepath.Join(dir, "KPI_Entries.csv")},
		Export: common.ExportConfig{Path: filepath.Join(dir, "out.xlsx")},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- run(ctx, testConfig(t), quietLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("exit code = %d, want 0", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunBadSweepSpecReturnsCode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Staging.SweepSpec = "not a schedule"
	if code := run(context.Background(), cfg, quietLogger()); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
