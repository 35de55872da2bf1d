package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vintagevision/internal/config"
	"vintagevision/internal/domain"
	"vintagevision/internal/requests"
	"vintagevision/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		ListenAddr:                     "127.0.0.1:0",
		DBPath:                         filepath.Join(dir, "app.db"),
		LLMProvider:                    "anthropic",
		LLMCorrectionExamples:          8,
		LLMExampleMaxLen:               200,
		OverdueCheckSchedule:           "0 * * * *",
		Timezone:                       "UTC",
		Location:                       time.UTC,
		ExpertDirectoryPath:            filepath.Join(dir, "experts.yaml"),
		AutoEscalateCents:              100_000,
		PremiumEscalateCents:           1_000_000,
		LowConfidenceThreshold:         0.6,
		AuthenticationConcernThreshold: 0.7,
		HighRiskCategories:             []string{"jewelry", "watches", "art", "coins"},
	}
}

func TestNewWiresOptionalIntegrationsOff(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Manager.Notifier != nil {
		t.Fatal("notifier should be nil without slack configuration")
	}
	if a.Server.Analyzer != nil {
		t.Fatal("analyzer should be disabled without an API key")
	}
	if sinks, ok := a.Manager.Sink.(requests.MultiSink); !ok || len(sinks) != 1 {
		t.Fatalf("expected sqlite-only sink, got %#v", a.Manager.Sink)
	}
	if len(a.Manager.Config.Tiers) != 3 {
		t.Fatalf("expected default tiers, got %d", len(a.Manager.Config.Tiers))
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.OverdueCheckSchedule = "whenever"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestCorrectionExamplesReadsStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	err = st.RecordCorrections(context.Background(), requests.CorrectionBatch{
		RequestID:    "req-1",
		ItemName:     "Seamaster",
		ItemCategory: domain.DomainWatches,
		Corrections:  []domain.Correction{{Field: "era", OriginalValue: "1970", CorrectedValue: "1958", Explanation: "cal. 501"}},
	})
	if err != nil {
		t.Fatalf("RecordCorrections failed: %v", err)
	}

	got, err := CorrectionExamples(st).CorrectionExamples(context.Background(), 5)
	if err != nil {
		t.Fatalf("CorrectionExamples failed: %v", err)
	}
	if len(got) != 1 || got[0].ItemName != "Seamaster" || got[0].CorrectedValue != "1958" || got[0].Explanation != "cal. 501" {
		t.Fatalf("unexpected examples: %+v", got)
	}
}

func TestNewAnalyzerConfigured(t *testing.T) {
	cfg := testConfig(t)
	if NewAnalyzer(cfg, nil).Configured() {
		t.Fatal("no key should mean not configured")
	}
	cfg.AnthropicAPIKey = "sk-ant-test"
	if !NewAnalyzer(cfg, nil).Configured() {
		t.Fatal("anthropic key should configure the analyzer")
	}
}
