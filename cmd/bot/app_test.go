package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wikistream/internal/stats"
)

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "warning", input: "warning", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "invalid", input: "trace", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			got, err := parseLogLevel(testCase.input)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if testCase.wantErr {
				return
			}
			if got != testCase.want {
				t.Fatalf("level = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads all supported fields from config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bot.json")
		writeConfigFile(t, configPath, `{
			"log_level":"warn",
			"http":{
				"addr":"127.0.0.1:9090",
				"shutdown_timeout":"15s"
			},
			"mongo":{
				"uri":"mongodb://localhost:27017",
				"database":"wiki",
				"collection":"stats"
			},
			"telegram":{
				"app_id":123456,
				"app_hash":"sample_hash",
				"token":"123:abc"
			},
			"sweeper":{
				"max_records":25,
				"retention":"12h",
				"schedule":"@every 3h"
			},
			"cache":{
				"capacity":40
			},
			"startup_languages":["en","DE"]
		}`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}

		if cfg.logLevel != slog.LevelWarn {
			t.Fatalf("log level = %v, want warn", cfg.logLevel)
		}
		if cfg.httpAddr != "127.0.0.1:9090" {
			t.Fatalf("http addr = %q", cfg.httpAddr)
		}
		if cfg.shutdownTimeout != 15*time.Second {
			t.Fatalf("shutdown timeout = %v", cfg.shutdownTimeout)
		}
		if cfg.mongoURI != "mongodb://localhost:27017" || cfg.mongoDatabase != "wiki" || cfg.mongoCollection != "stats" {
			t.Fatalf("mongo config = %q %q %q", cfg.mongoURI, cfg.mongoDatabase, cfg.mongoCollection)
		}
		if cfg.telegram.AppID != 123456 || cfg.telegram.AppHash != "sample_hash" || cfg.telegram.Token != "123:abc" {
			t.Fatalf("telegram config = %+v", cfg.telegram)
		}
		if cfg.sweepMaxRecords != 25 || cfg.sweepRetention != 12*time.Hour || cfg.sweepSchedule != "@every 3h" {
			t.Fatalf("sweeper config = %d %v %q", cfg.sweepMaxRecords, cfg.sweepRetention, cfg.sweepSchedule)
		}
		if cfg.cacheCapacity != 40 {
			t.Fatalf("cache capacity = %d", cfg.cacheCapacity)
		}
		if len(cfg.startupLanguages) != 2 || cfg.startupLanguages[0] != "en" || cfg.startupLanguages[1] != "de" {
			t.Fatalf("startup languages = %v", cfg.startupLanguages)
		}
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bot.json")
		writeConfigFile(t, configPath, `{}`)
		t.Setenv(envConfigFile, configPath)

		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}

		if cfg.logLevel != slog.LevelInfo {
			t.Fatalf("log level = %v, want info", cfg.logLevel)
		}
		if cfg.sweepMaxRecords != stats.DefaultMaxRecords {
			t.Fatalf("max records = %d, want %d", cfg.sweepMaxRecords, int64(stats.DefaultMaxRecords))
		}
		if cfg.sweepRetention != stats.DefaultRetention {
			t.Fatalf("retention = %v, want %v", cfg.sweepRetention, stats.DefaultRetention)
		}
		if cfg.sweepSchedule != stats.DefaultSweepSchedule {
			t.Fatalf("schedule = %q, want %q", cfg.sweepSchedule, stats.DefaultSweepSchedule)
		}
		if cfg.mongoURI != "" {
			t.Fatalf("mongo uri = %q, want empty", cfg.mongoURI)
		}
		if len(cfg.startupLanguages) != 0 {
			t.Fatalf("startup languages = %v, want none", cfg.startupLanguages)
		}
	})

	t.Run("missing file reports every candidate path", func(t *testing.T) {
		t.Setenv(envConfigFile, "")
		t.Chdir(t.TempDir())

		_, err := loadConfig()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{defaultConfigFilePath, alternateConfigFilePath, envConfigFile} {
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("error %q does not mention %s", err, want)
			}
		}
	})

	invalidConfigs := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name:     "malformed json",
			contents: `{`,
			wantErr:  "parse config file",
		},
		{
			name:     "unknown log level",
			contents: `{"log_level":"trace"}`,
			wantErr:  "parse log_level",
		},
		{
			name:     "non-positive shutdown timeout",
			contents: `{"http":{"shutdown_timeout":"0s"}}`,
			wantErr:  "http.shutdown_timeout",
		},
		{
			name:     "non-positive max records",
			contents: `{"sweeper":{"max_records":0}}`,
			wantErr:  "sweeper.max_records",
		},
		{
			name:     "malformed retention",
			contents: `{"sweeper":{"retention":"six hours"}}`,
			wantErr:  "sweeper.retention",
		},
		{
			name:     "malformed schedule",
			contents: `{"sweeper":{"schedule":"every day at noon"}}`,
			wantErr:  "sweeper.schedule",
		},
		{
			name:     "non-positive cache capacity",
			contents: `{"cache":{"capacity":-1}}`,
			wantErr:  "cache.capacity",
		},
		{
			name:     "invalid startup language",
			contents: `{"startup_languages":["english"]}`,
			wantErr:  "startup_languages[0]",
		},
		{
			name:     "partial telegram credentials",
			contents: `{"telegram":{"app_id":123456}}`,
			wantErr:  "missing app hash",
		},
	}

	for _, testCase := range invalidConfigs {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "bot.json")
			writeConfigFile(t, configPath, testCase.contents)
			t.Setenv(envConfigFile, configPath)

			_, err := loadConfig()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("error %q does not mention %q", err, testCase.wantErr)
			}
		})
	}
}

func TestBuildAppWithoutExternalServices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := defaultAppConfig()

	application, err := buildApp(t.Context(), logger, cfg)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	if application.bot != nil {
		t.Fatal("expected no telegram bot without credentials")
	}
	if _, ok := application.store.(*stats.MemoryStore); !ok {
		t.Fatalf("store = %T, want *stats.MemoryStore", application.store)
	}

	if err := application.shutdownAll(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
