// Package app wires configuration into the running service.
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"vintagevision/internal/config"
	"vintagevision/internal/directory"
	"vintagevision/internal/httpx"
	"vintagevision/internal/integrations/kafka"
	"vintagevision/internal/integrations/llm"
	slackbot "vintagevision/internal/integrations/slack"
	"vintagevision/internal/matching"
	"vintagevision/internal/overdue"
	"vintagevision/internal/requests"
	"vintagevision/internal/server"
	"vintagevision/internal/store"
)

type App struct {
	Config   config.Config
	Store    *store.Store
	Manager  *requests.Manager
	Analyzer *llm.Client
	Server   *server.Server
	Overdue  *overdue.Scheduler

	closers []func() error
}

// New opens the database and every configured integration. Optional
// integrations that are not configured are skipped with a log line.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Listen=%s DB=%s LLMProvider=%s LLMExamples=%d Slack=%t Kafka=%t ExpertDirectory=%s Timezone=%s ExternalHTTPTimeout=%s",
		cfg.ListenAddr,
		cfg.DBPath,
		cfg.LLMProvider,
		cfg.LLMCorrectionExamples,
		cfg.SlackConfigured(),
		cfg.KafkaConfigured(),
		directoryLabel(cfg),
		cfg.Timezone,
		appliedHTTPTimeout,
	)

	a := &App{Config: cfg}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	log.Printf("Database initialized at %s", cfg.DBPath)

	experts, err := a.openDirectory(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink := requests.MultiSink{st}
	if cfg.KafkaConfigured() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaCorrectionsTopic)
		a.closers = append(a.closers, producer.Close)
		sink = append(sink, producer)
		log.Printf("Kafka corrections sink topic=%s brokers=%d", cfg.KafkaCorrectionsTopic, len(cfg.KafkaBrokers))
	}

	escCfg := cfg.EscalationConfig()
	a.Manager = &requests.Manager{
		Store:   st,
		Experts: experts,
		Sink:    sink,
		Matcher: matching.Matcher{Tiers: escCfg.Tiers},
		Config:  escCfg,
	}
	if cfg.SlackConfigured() {
		a.Manager.Notifier = slackbot.New(cfg.SlackBotToken, cfg.ExpertChannelID, cfg.Location)
	} else {
		log.Println("Slack not configured, expert notifications disabled")
	}

	a.Analyzer = NewAnalyzer(cfg, CorrectionExamples(st))
	if !a.Analyzer.Configured() {
		log.Printf("WARNING: no API key for llm_provider=%s, /api/analyze will answer 503", cfg.LLMProvider)
	}

	a.Server = &server.Server{
		Manager: a.Manager,
		Config:  escCfg,
		History: st,
	}
	if a.Analyzer.Configured() {
		a.Server.Analyzer = a.Analyzer
	}

	a.Overdue, err = overdue.New(cfg.OverdueCheckSchedule, cfg.Location, a.Manager)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openDirectory(ctx context.Context) (directory.Source, error) {
	if a.Config.ExpertDirectoryDSN != "" {
		pg, err := directory.OpenPostgres(ctx, a.Config.ExpertDirectoryDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	}
	return directory.File{Path: a.Config.ExpertDirectoryPath}, nil
}

func directoryLabel(cfg config.Config) string {
	if cfg.ExpertDirectoryDSN != "" {
		return "postgres"
	}
	return cfg.ExpertDirectoryPath
}

// Run starts the overdue scheduler and serves the HTTP API until ctx ends.
func (a *App) Run(ctx context.Context) error {
	a.Overdue.Start(ctx)
	return a.Server.ListenAndServe(ctx, a.Config.ListenAddr)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewAnalyzer builds the vision client for the configured provider.
func NewAnalyzer(cfg config.Config, corrections llm.CorrectionSource) *llm.Client {
	return &llm.Client{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		HTTPClient:      httpx.ExternalHTTPClient(),
		Corrections:     corrections,
		ExampleCount:    cfg.LLMCorrectionExamples,
		ExampleMaxLen:   cfg.LLMExampleMaxLen,
	}
}

// CorrectionExamples adapts stored expert corrections into prompt examples.
func CorrectionExamples(st *store.Store) llm.CorrectionSource {
	return llm.CorrectionSourceFunc(func(ctx context.Context, limit int) ([]llm.CorrectionExample, error) {
		rows, err := st.GetRecentCorrections(ctx, time.Time{}, limit)
		if err != nil {
			return nil, err
		}
		out := make([]llm.CorrectionExample, len(rows))
		for i, r := range rows {
			out[i] = llm.CorrectionExample{
				ItemName:       r.ItemName,
				ItemCategory:   r.ItemCategory,
				Field:          r.Field,
				OriginalValue:  r.OriginalValue,
				CorrectedValue: r.CorrectedValue,
				Explanation:    r.Explanation,
			}
		}
		return out, nil
	})
}
