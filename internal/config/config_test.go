package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidscribe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".cache", "vidscribe", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "vidscribe") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Transcription.Language != "auto" {
		t.Fatalf("expected auto language, got %q", cfg.Transcription.Language)
	}
	if !cfg.Diarization.Enabled {
		t.Fatal("expected diarization enabled by default")
	}
	if !cfg.Transcription.VADFilter {
		t.Fatal("expected VAD filter enabled by default")
	}
	if cfg.Download.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts: %d", cfg.Download.MaxAttempts)
	}
	if cfg.Output.Format != "txt" {
		t.Fatalf("unexpected output format: %q", cfg.Output.Format)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if filepath.Dir(cfg.HistoryPath()) != cfg.Paths.StateDir {
		t.Fatalf("history path %q not under state dir", cfg.HistoryPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidscribe.toml")

	type payload struct {
		Paths struct {
			WorkDir string `toml:"work_dir"`
		} `toml:"paths"`
		Transcription struct {
			Language string `toml:"language"`
			Model    string `toml:"model"`
			BeamSize int    `toml:"beam_size"`
		} `toml:"transcription"`
		Output struct {
			Format string `toml:"format"`
		} `toml:"output"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.WorkDir = filepath.Join(tempDir, "work")
	custom.Transcription.Language = "en-US"
	custom.Transcription.Model = " Medium "
	custom.Transcription.BeamSize = 3
	custom.Output.Format = "SRT"
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WorkDir != custom.Paths.WorkDir {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Transcription.Language != "en" {
		t.Fatalf("expected language reduced to base, got %q", cfg.Transcription.Language)
	}
	if cfg.Transcription.Model != "medium" {
		t.Fatalf("expected normalized model, got %q", cfg.Transcription.Model)
	}
	if cfg.Transcription.BeamSize != 3 {
		t.Fatalf("unexpected beam size %d", cfg.Transcription.BeamSize)
	}
	if cfg.Output.Format != "srt" {
		t.Fatalf("expected lowercase format, got %q", cfg.Output.Format)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "format", body: "[output]\nformat = \"docx\"\n", wantErr: "output.format"},
		{name: "model", body: "[transcription]\nmodel = \"giant\"\n", wantErr: "transcription.model"},
		{name: "beam", body: "[transcription]\nbeam_size = -1\n", wantErr: "transcription.beam_size"},
		{name: "language", body: "[transcription]\nlanguage = \"not a language\"\n", wantErr: "transcription.language"},
		{name: "attempts", body: "[download]\nmax_attempts = -2\n", wantErr: "download.max_attempts"},
		{name: "speakers", body: "[diarization]\nnum_speakers = -1\n", wantErr: "diarization.num_speakers"},
		{name: "log level", body: "[logging]\nlevel = \"loud\"\n", wantErr: "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	def := config.Default()
	if cfg.Download.MaxAttempts != def.Download.MaxAttempts {
		t.Fatalf("sample max attempts %d differs from default %d", cfg.Download.MaxAttempts, def.Download.MaxAttempts)
	}
	if cfg.Transcription.Runner != def.Transcription.Runner {
		t.Fatalf("sample runner %q differs from default %q", cfg.Transcription.Runner, def.Transcription.Runner)
	}
}

func TestResolveHFTokenPrecedence(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.HFToken = "persisted"

	t.Setenv(config.EnvHFToken, "primary")
	t.Setenv(config.EnvHFHubToken, "secondary")

	if token, src := cfg.ResolveHFToken(" explicit "); token != "explicit" || src != config.CredentialExplicit {
		t.Fatalf("explicit: got %q (%s)", token, src)
	}
	if token, src := cfg.ResolveHFToken(""); token != "primary" || src != config.CredentialPrimary {
		t.Fatalf("primary: got %q (%s)", token, src)
	}

	t.Setenv(config.EnvHFToken, "")
	if token, src := cfg.ResolveHFToken(""); token != "secondary" || src != config.CredentialSecondary {
		t.Fatalf("secondary: got %q (%s)", token, src)
	}

	t.Setenv(config.EnvHFHubToken, "  ")
	if token, src := cfg.ResolveHFToken(""); token != "persisted" || src != config.CredentialPersisted {
		t.Fatalf("persisted: got %q (%s)", token, src)
	}

	cfg.Diarization.HFToken = ""
	if token, src := cfg.ResolveHFToken(""); token != "" || src != config.CredentialNone {
		t.Fatalf("none: got %q (%s)", token, src)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"":      "auto",
		"AUTO":  "auto",
		"en":    "en",
		"de-AT": "de",
		"fra":   "fr",
	}
	for input, want := range tests {
		got, err := config.NormalizeLanguage(input)
		if err != nil {
			t.Fatalf("NormalizeLanguage(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q want %q", input, got, want)
		}
	}
	if _, err := config.NormalizeLanguage("not a language"); err == nil {
		t.Fatal("expected error for malformed language")
	}
}

func TestRedactedMasksToken(t *testing.T) {
	cfg := config.Default()
	cfg.Diarization.HFToken = "hf_abcdefgh"
	redacted := cfg.Redacted()
	if redacted.Diarization.HFToken == cfg.Diarization.HFToken {
		t.Fatal("expected token to be masked")
	}
	if !strings.HasPrefix(redacted.Diarization.HFToken, "hf") || !strings.HasSuffix(redacted.Diarization.HFToken, "gh") {
		t.Fatalf("unexpected mask %q", redacted.Diarization.HFToken)
	}
	data, err := redacted.EncodeTOML()
	if err != nil {
		t.Fatalf("EncodeTOML: %v", err)
	}
	if strings.Contains(string(data), "abcdefgh") {
		t.Fatal("encoded config leaked the token")
	}
}
