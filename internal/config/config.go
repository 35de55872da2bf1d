package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	LLMProvider           string `yaml:"llm_provider"`
	LLMModel              string `yaml:"llm_model"`
	LLMCorrectionExamples int    `yaml:"llm_correction_examples"`
	LLMExampleMaxLen      int    `yaml:"llm_example_max_chars"`
	AnthropicAPIKey       string `yaml:"anthropic_api_key"`
	OpenAIAPIKey          string `yaml:"openai_api_key"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	SlackBotToken        string `yaml:"slack_bot_token"`
	ExpertChannelID      string `yaml:"expert_channel_id"`
	OverdueCheckSchedule string `yaml:"overdue_check_schedule"`
	Timezone             string `yaml:"timezone"`

	ExpertDirectoryPath string `yaml:"expert_directory_path"`
	ExpertDirectoryDSN  string `yaml:"expert_directory_dsn"`

	KafkaBrokers          []string `yaml:"kafka_brokers"`
	KafkaCorrectionsTopic string   `yaml:"kafka_corrections_topic"`

	AutoEscalateCents              int64    `yaml:"auto_escalate_cents"`
	PremiumEscalateCents           int64    `yaml:"premium_escalate_cents"`
	LowConfidenceThreshold         float64  `yaml:"low_confidence_threshold"`
	AuthenticationConcernThreshold float64  `yaml:"authentication_concern_threshold"`
	HighRiskCategories             []string `yaml:"high_risk_categories"`

	GroundTruthPath string `yaml:"ground_truth_path"`
	EvalParallel    int    `yaml:"eval_parallel"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.LLMCorrectionExamples, "LLM_CORRECTION_EXAMPLES")
	envOverrideInt(&cfg.LLMExampleMaxLen, "LLM_EXAMPLE_MAX_CHARS")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ExpertChannelID, "EXPERT_CHANNEL_ID")
	envOverride(&cfg.OverdueCheckSchedule, "OVERDUE_CHECK_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.ExpertDirectoryPath, "EXPERT_DIRECTORY_PATH")
	envOverride(&cfg.ExpertDirectoryDSN, "EXPERT_DIRECTORY_DSN")
	envOverrideList(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	envOverride(&cfg.KafkaCorrectionsTopic, "KAFKA_CORRECTIONS_TOPIC")
	envOverrideInt64(&cfg.AutoEscalateCents, "AUTO_ESCALATE_CENTS")
	envOverrideInt64(&cfg.PremiumEscalateCents, "PREMIUM_ESCALATE_CENTS")
	envOverrideFloat(&cfg.LowConfidenceThreshold, "LOW_CONFIDENCE_THRESHOLD")
	envOverrideFloat(&cfg.AuthenticationConcernThreshold, "AUTHENTICATION_CONCERN_THRESHOLD")
	envOverrideList(&cfg.HighRiskCategories, "HIGH_RISK_CATEGORIES")
	envOverride(&cfg.GroundTruthPath, "GROUND_TRUTH_PATH")
	envOverrideInt(&cfg.EvalParallel, "EVAL_PARALLEL")

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./vintagevision.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMCorrectionExamples == 0 {
		cfg.LLMCorrectionExamples = 8
	}
	if cfg.LLMExampleMaxLen == 0 {
		cfg.LLMExampleMaxLen = 200
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.OverdueCheckSchedule == "" {
		cfg.OverdueCheckSchedule = "0 * * * *"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.ExpertDirectoryPath == "" {
		cfg.ExpertDirectoryPath = "./experts.yaml"
	}
	if cfg.KafkaCorrectionsTopic == "" {
		cfg.KafkaCorrectionsTopic = "expert-corrections"
	}
	if cfg.GroundTruthPath == "" {
		cfg.GroundTruthPath = "./ground_truth.yaml"
	}
	if cfg.EvalParallel == 0 {
		cfg.EvalParallel = 4
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Printf("WARNING: anthropic_api_key is not set. /api/analyze will be unavailable.")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Printf("WARNING: openai_api_key is not set. /api/analyze will be unavailable.")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}
	if cfg.SlackBotToken == "" {
		log.Printf("WARNING: slack_bot_token is not set. Expert notifications will only be logged.")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if _, err := cron.ParseStandard(cfg.OverdueCheckSchedule); err != nil {
		log.Fatalf("invalid overdue_check_schedule '%s': %v", cfg.OverdueCheckSchedule, err)
	}
	if cfg.LLMCorrectionExamples < 0 {
		log.Fatalf("invalid llm_correction_examples '%d': must be >= 0", cfg.LLMCorrectionExamples)
	}
	if cfg.LLMExampleMaxLen < 20 {
		log.Fatalf("invalid llm_example_max_chars '%d': must be >= 20", cfg.LLMExampleMaxLen)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.EvalParallel < 1 {
		log.Fatalf("invalid eval_parallel '%d': must be >= 1", cfg.EvalParallel)
	}
	if err := cfg.EscalationConfig().Validate(); err != nil {
		log.Fatalf("invalid escalation config: %v", err)
	}

	return cfg
}

// EscalationConfig layers the configured thresholds over the defaults.
func (c Config) EscalationConfig() escalation.Config {
	ec := escalation.DefaultConfig()
	if c.AutoEscalateCents != 0 {
		ec.AutoEscalateValue = c.AutoEscalateCents
	}
	if c.PremiumEscalateCents != 0 {
		ec.PremiumEscalateValue = c.PremiumEscalateCents
	}
	if c.LowConfidenceThreshold != 0 {
		ec.LowConfidence = c.LowConfidenceThreshold
	}
	if c.AuthenticationConcernThreshold != 0 {
		ec.AuthenticationConcern = c.AuthenticationConcernThreshold
	}
	if len(c.HighRiskCategories) > 0 {
		ec.HighRiskCategories = nil
		for _, name := range c.HighRiskCategories {
			raw := strings.ToLower(strings.TrimSpace(name))
			d := domain.ParseDomain(raw)
			if d == domain.DomainGeneral && raw != string(domain.DomainGeneral) {
				// Keep unknown names so Validate reports them.
				d = domain.Domain(raw)
			}
			ec.HighRiskCategories = append(ec.HighRiskCategories, d)
		}
	}
	return ec
}

func (c Config) ExternalHTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != ""
}

func (c Config) KafkaConfigured() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaCorrectionsTopic != ""
}

func (c Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	*field = nil
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*field = append(*field, part)
		}
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideInt64(field *int64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
