package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func emptyBackend() *fileBackend {
	return &fileBackend{data: make(map[string]any)}
}

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWith(emptyBackend(), noEnv)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.GenerateModel != "llama3.2" {
		t.Errorf("GenerateModel = %q", cfg.Ollama.GenerateModel)
	}
	if cfg.Retrieval.TopK != 50 {
		t.Errorf("TopK = %d, want 50", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.Dimension != 384 {
		t.Errorf("Dimension = %d, want 384", cfg.Retrieval.Dimension)
	}
	if cfg.Answer.GenerateTimeout != 60*time.Second {
		t.Errorf("GenerateTimeout = %v, want 60s", cfg.Answer.GenerateTimeout)
	}
	if len(cfg.Answer.TriggerPhrases) == 0 {
		t.Error("TriggerPhrases is empty, want defaults")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server.port": 9001,
		"ollama.generate_model": "mistral",
		"retrieval.top_k": "10",
		"answer.trigger_phrases": "supervisor, escalate",
		"answer.generate_timeout": "30s"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path), noEnv)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Ollama.GenerateModel != "mistral" {
		t.Errorf("GenerateModel = %q, want %q", cfg.Ollama.GenerateModel, "mistral")
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("TopK = %d, want 10 (string int coercion)", cfg.Retrieval.TopK)
	}
	want := []string{"supervisor", "escalate"}
	if len(cfg.Answer.TriggerPhrases) != 2 || cfg.Answer.TriggerPhrases[0] != want[0] || cfg.Answer.TriggerPhrases[1] != want[1] {
		t.Errorf("TriggerPhrases = %v, want %v", cfg.Answer.TriggerPhrases, want)
	}
	if cfg.Answer.GenerateTimeout != 30*time.Second {
		t.Errorf("GenerateTimeout = %v, want 30s", cfg.Answer.GenerateTimeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "does-not-exist.json"))
	cfg, err := loadWith(b, noEnv)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 9001}`), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path), envMap(map[string]string{
		"FRONTDESK_PORT":             "9002",
		"FRONTDESK_EMBED_MODEL":      "nomic-embed-text",
		"FRONTDESK_OLLAMA_USER":      "salon",
		"FRONTDESK_OLLAMA_PASS":      "secret",
		"FRONTDESK_TRIGGER_PHRASES":  "not sure,double-check",
		"FRONTDESK_GENERATE_TIMEOUT": "90s",
	}))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9002 {
		t.Errorf("Port = %d, want env override 9002", cfg.Server.Port)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Ollama.Username != "salon" || cfg.Ollama.Password != "secret" {
		t.Errorf("credentials = %q/%q", cfg.Ollama.Username, cfg.Ollama.Password)
	}
	if len(cfg.Answer.TriggerPhrases) != 2 || cfg.Answer.TriggerPhrases[1] != "double-check" {
		t.Errorf("TriggerPhrases = %v", cfg.Answer.TriggerPhrases)
	}
	if cfg.Answer.GenerateTimeout != 90*time.Second {
		t.Errorf("GenerateTimeout = %v, want 90s", cfg.Answer.GenerateTimeout)
	}
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	for _, env := range []map[string]string{
		{"FRONTDESK_PORT": "not-a-number"},
		{"FRONTDESK_TOP_K": "ten"},
		{"FRONTDESK_DIMENSION": "x"},
		{"FRONTDESK_GENERATE_TIMEOUT": "soon"},
	} {
		if _, err := loadWith(emptyBackend(), envMap(env)); err == nil {
			t.Errorf("loadWith(%v) succeeded, want error", env)
		}
	}
}

func TestLoad_RejectsNonPositiveRetrieval(t *testing.T) {
	if _, err := loadWith(emptyBackend(), envMap(map[string]string{"FRONTDESK_DIMENSION": "0"})); err == nil {
		t.Error("zero dimension accepted, want error")
	}
	if _, err := loadWith(emptyBackend(), envMap(map[string]string{"FRONTDESK_TOP_K": "-1"})); err == nil {
		t.Error("negative top_k accepted, want error")
	}
}

func TestSplitPhrases(t *testing.T) {
	got := splitPhrases(" supervisor ,, check with ,")
	want := []string{"supervisor", "check with"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phrases[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileBackend_GetInt(t *testing.T) {
	b := &fileBackend{data: map[string]any{
		"float":    float64(42),
		"string":   "7",
		"frac":     float64(1.5),
		"bad":      "abc",
		"not_used": true,
	}}

	if v, ok := b.getInt("float"); !ok || v != 42 {
		t.Errorf("getInt(float) = %d, %v", v, ok)
	}
	if v, ok := b.getInt("string"); !ok || v != 7 {
		t.Errorf("getInt(string) = %d, %v", v, ok)
	}
	if _, ok := b.getInt("frac"); ok {
		t.Error("getInt(frac) accepted a fractional value")
	}
	if _, ok := b.getInt("bad"); ok {
		t.Error("getInt(bad) accepted a non-numeric string")
	}
	if _, ok := b.getInt("missing"); ok {
		t.Error("getInt(missing) = true, want false")
	}
}
