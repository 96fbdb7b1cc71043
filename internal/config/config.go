package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Answer    AnswerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL       string
	GenerateModel string
	EmbedModel    string
	// Optional basic-auth credentials for Ollama instances behind a proxy.
	Username string
	Password string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	// TopK is the number of context documents retrieved per question.
	TopK int
	// Dimension is the embedding vector size, fixed per knowledge store.
	Dimension int
}

type AnswerConfig struct {
	// TriggerPhrases mark a generated answer as escalation-worthy when any
	// of them appears in it (case-insensitive).
	TriggerPhrases []string
	// GenerateTimeout bounds a single generation call.
	GenerateTimeout time.Duration
}

type LogConfig struct {
	Level string
}

// DefaultTriggerPhrases is the stock escalation heuristic. Overridable via
// the config file ("answer.trigger_phrases") or FRONTDESK_TRIGGER_PHRASES.
var DefaultTriggerPhrases = []string{
	"supervisor",
	"manager",
	"confirm with",
	"ask my boss",
	"check with",
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			GenerateModel: "llama3.2",
			EmbedModel:    "all-minilm",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:      50,
			Dimension: 384,
		},
		Answer: AnswerConfig{
			TriggerPhrases:  DefaultTriggerPhrases,
			GenerateTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the XDG config file and environment.
// File values override defaults; FRONTDESK_* environment variables
// override both.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), os.Getenv)
}

func loadWith(b *fileBackend, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if cfg.Retrieval.Dimension <= 0 {
		return Config{}, fmt.Errorf("retrieval.dimension must be positive, got %d", cfg.Retrieval.Dimension)
	}
	if cfg.Retrieval.TopK <= 0 {
		return Config{}, fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	return cfg, nil
}

func applyBackend(cfg *Config, b *fileBackend) error {
	if v, ok := b.getInt("server.port"); ok {
		cfg.Server.Port = v
	}
	if v, ok := b.getString("ollama.base_url"); ok {
		cfg.Ollama.BaseURL = v
	}
	if v, ok := b.getString("ollama.generate_model"); ok {
		cfg.Ollama.GenerateModel = v
	}
	if v, ok := b.getString("ollama.embed_model"); ok {
		cfg.Ollama.EmbedModel = v
	}
	if v, ok := b.getString("ollama.username"); ok {
		cfg.Ollama.Username = v
	}
	if v, ok := b.getString("ollama.password"); ok {
		cfg.Ollama.Password = v
	}
	if v, ok := b.getString("storage.data_dir"); ok {
		cfg.Storage.DataDir = v
	}
	if v, ok := b.getInt("retrieval.top_k"); ok {
		cfg.Retrieval.TopK = v
	}
	if v, ok := b.getInt("retrieval.dimension"); ok {
		cfg.Retrieval.Dimension = v
	}
	if v, ok := b.getString("answer.trigger_phrases"); ok {
		cfg.Answer.TriggerPhrases = splitPhrases(v)
	}
	if v, ok := b.getString("answer.generate_timeout"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid answer.generate_timeout %q: %w", v, err)
		}
		cfg.Answer.GenerateTimeout = d
	}
	if v, ok := b.getString("log.level"); ok {
		cfg.Log.Level = v
	}
	return nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if v := getenv("FRONTDESK_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FRONTDESK_PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	if v := getenv("FRONTDESK_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := getenv("FRONTDESK_GENERATE_MODEL"); v != "" {
		cfg.Ollama.GenerateModel = v
	}
	if v := getenv("FRONTDESK_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := getenv("FRONTDESK_OLLAMA_USER"); v != "" {
		cfg.Ollama.Username = v
	}
	if v := getenv("FRONTDESK_OLLAMA_PASS"); v != "" {
		cfg.Ollama.Password = v
	}
	if v := getenv("FRONTDESK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("FRONTDESK_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FRONTDESK_TOP_K %q: %w", v, err)
		}
		cfg.Retrieval.TopK = k
	}
	if v := getenv("FRONTDESK_DIMENSION"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FRONTDESK_DIMENSION %q: %w", v, err)
		}
		cfg.Retrieval.Dimension = d
	}
	if v := getenv("FRONTDESK_TRIGGER_PHRASES"); v != "" {
		cfg.Answer.TriggerPhrases = splitPhrases(v)
	}
	if v := getenv("FRONTDESK_GENERATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FRONTDESK_GENERATE_TIMEOUT %q: %w", v, err)
		}
		cfg.Answer.GenerateTimeout = d
	}
	if v := getenv("FRONTDESK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func splitPhrases(s string) []string {
	parts := strings.Split(s, ",")
	phrases := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}
