package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"wikistream/internal/chat"
	"wikistream/internal/feed"
	"wikistream/internal/metrics"
	"wikistream/internal/stats"
	"wikistream/internal/status"
	"wikistream/internal/telegram"
	"wikistream/pkg/wikistream"
)

const (
	envConfigFile           = "WIKISTREAM_CONFIG_FILE"
	defaultConfigFilePath   = "config/bot.json"
	alternateConfigFilePath = "bin/config/bot.json"
	defaultShutdownTimeout  = 10 * time.Second
	mongoConnectTimeout     = 15 * time.Second
)

type appConfig struct {
	logLevel slog.Level

	httpAddr        string
	shutdownTimeout time.Duration

	mongoURI        string
	mongoDatabase   string
	mongoCollection string

	telegram telegram.Config

	sweepMaxRecords int64
	sweepRetention  time.Duration
	sweepSchedule   string

	cacheCapacity int

	startupLanguages []wikistream.LanguageKey
}

type fileConfig struct {
	LogLevel         string             `json:"log_level"`
	HTTP             fileHTTPConfig     `json:"http"`
	Mongo            fileMongoConfig    `json:"mongo"`
	Telegram         fileTelegramConfig `json:"telegram"`
	Sweeper          fileSweeperConfig  `json:"sweeper"`
	Cache            fileCacheConfig    `json:"cache"`
	StartupLanguages []string           `json:"startup_languages"`
}

type fileHTTPConfig struct {
	Addr            string `json:"addr"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type fileMongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type fileTelegramConfig struct {
	AppID   int    `json:"app_id"`
	AppHash string `json:"app_hash"`
	Token   string `json:"token"`
}

type fileSweeperConfig struct {
	MaxRecords *int64 `json:"max_records"`
	Retention  string `json:"retention"`
	Schedule   string `json:"schedule"`
}

type fileCacheConfig struct {
	Capacity *int `json:"capacity"`
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := buildApp(ctx, logger, cfg)
	if err != nil {
		return err
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run bot: %w", err)
	}

	return nil
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		httpAddr:        status.DefaultAddr,
		shutdownTimeout: defaultShutdownTimeout,

		mongoDatabase:   stats.DefaultDatabase,
		mongoCollection: stats.DefaultCollection,

		sweepMaxRecords: stats.DefaultMaxRecords,
		sweepRetention:  stats.DefaultRetention,
		sweepSchedule:   stats.DefaultSweepSchedule,

		cacheCapacity: 0,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if addr := strings.TrimSpace(parsed.HTTP.Addr); addr != "" {
		cfg.httpAddr = addr
	}
	if rawTimeout := strings.TrimSpace(parsed.HTTP.ShutdownTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return fmt.Errorf("parse http.shutdown_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("parse http.shutdown_timeout: must be > 0")
		}
		cfg.shutdownTimeout = timeout
	}

	cfg.mongoURI = strings.TrimSpace(parsed.Mongo.URI)
	if database := strings.TrimSpace(parsed.Mongo.Database); database != "" {
		cfg.mongoDatabase = database
	}
	if collection := strings.TrimSpace(parsed.Mongo.Collection); collection != "" {
		cfg.mongoCollection = collection
	}

	cfg.telegram = telegram.Config{
		AppID:   parsed.Telegram.AppID,
		AppHash: strings.TrimSpace(parsed.Telegram.AppHash),
		Token:   strings.TrimSpace(parsed.Telegram.Token),
	}

	if parsed.Sweeper.MaxRecords != nil {
		if *parsed.Sweeper.MaxRecords <= 0 {
			return fmt.Errorf("parse sweeper.max_records: must be > 0")
		}
		cfg.sweepMaxRecords = *parsed.Sweeper.MaxRecords
	}
	if rawRetention := strings.TrimSpace(parsed.Sweeper.Retention); rawRetention != "" {
		retention, err := time.ParseDuration(rawRetention)
		if err != nil {
			return fmt.Errorf("parse sweeper.retention: %w", err)
		}
		if retention <= 0 {
			return fmt.Errorf("parse sweeper.retention: must be > 0")
		}
		cfg.sweepRetention = retention
	}
	if schedule := strings.TrimSpace(parsed.Sweeper.Schedule); schedule != "" {
		cfg.sweepSchedule = schedule
	}

	if parsed.Cache.Capacity != nil {
		if *parsed.Cache.Capacity <= 0 {
			return fmt.Errorf("parse cache.capacity: must be > 0")
		}
		cfg.cacheCapacity = *parsed.Cache.Capacity
	}

	cfg.startupLanguages = make([]wikistream.LanguageKey, 0, len(parsed.StartupLanguages))
	for index, raw := range parsed.StartupLanguages {
		lang, err := wikistream.ParseLanguage(raw)
		if err != nil {
			return fmt.Errorf("parse startup_languages[%d]: %w", index, err)
		}
		cfg.startupLanguages = append(cfg.startupLanguages, lang)
	}

	return nil
}

func validateAppConfig(cfg *appConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.telegram != (telegram.Config{}) {
		if err := cfg.telegram.Validate(); err != nil {
			return err
		}
	}

	if _, err := cron.ParseStandard(cfg.sweepSchedule); err != nil {
		return fmt.Errorf("parse sweeper.schedule: %w", err)
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

// app owns the wired components and their shutdown order.
type app struct {
	logger *slog.Logger
	cfg    appConfig

	store     wikistream.StatStore
	feed      *feed.Service
	processor *chat.Processor
	bot       *telegram.Bot
	status    *status.Server
	cron      *cron.Cron
}

func buildApp(ctx context.Context, logger *slog.Logger, cfg appConfig) (*app, error) {
	store, err := buildStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	sweeper := stats.NewSweeper(store,
		stats.WithSweeperLogger(logger),
		stats.WithMaxRecords(cfg.sweepMaxRecords),
		stats.WithRetention(cfg.sweepRetention),
	)
	aggregator := stats.NewAggregator(store,
		stats.WithAggregatorLogger(logger),
		stats.WithOpportunisticSweeper(sweeper),
	)

	feedOptions := []feed.Option{feed.WithLogger(logger)}
	if cfg.cacheCapacity > 0 {
		feedOptions = append(feedOptions, feed.WithCacheCapacity(cfg.cacheCapacity))
	}
	feedService, err := feed.New(aggregator, feedOptions...)
	if err != nil {
		return nil, fmt.Errorf("build feed service: %w", err)
	}

	processor, err := chat.NewProcessor(feedService, chat.WithProcessorLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build command processor: %w", err)
	}

	var bot *telegram.Bot
	if cfg.telegram != (telegram.Config{}) {
		bot, err = telegram.NewBot(cfg.telegram, processor, telegram.WithBotLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build telegram bot: %w", err)
		}
	} else {
		logger.Warn("telegram credentials absent, running without the chat front end")
	}

	statusServer, err := status.NewServer(cfg.httpAddr, feedService, status.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build status server: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddJob(cfg.sweepSchedule, sweeper); err != nil {
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}

	return &app{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		feed:      feedService,
		processor: processor,
		bot:       bot,
		status:    statusServer,
		cron:      scheduler,
	}, nil
}

func buildStore(ctx context.Context, logger *slog.Logger, cfg appConfig) (wikistream.StatStore, error) {
	if cfg.mongoURI == "" {
		logger.Warn("mongo uri absent, statistics will not survive a restart")
		return stats.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	store, err := stats.NewMongoStore(connectCtx, cfg.mongoURI, cfg.mongoDatabase, cfg.mongoCollection)
	if err != nil {
		return nil, fmt.Errorf("connect stats store: %w", err)
	}
	return store, nil
}

// Run starts every component and blocks until ctx is cancelled or a
// component fails, then tears everything down in reverse order.
func (a *app) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.cron.Start()

	for _, lang := range a.cfg.startupLanguages {
		if _, err := a.feed.Subscribe(runCtx, lang); err != nil {
			return errors.Join(
				fmt.Errorf("open startup stream %s: %w", lang, err),
				a.shutdownAll(ctx),
			)
		}
		a.logger.Info("opened startup change stream", "lang", string(lang))
	}

	failures := make(chan error, 2)
	go func() {
		failures <- a.status.Run(runCtx)
	}()
	if a.bot != nil {
		go func() {
			failures <- a.bot.Run(runCtx)
		}()
	}

	var runErr error
	select {
	case <-runCtx.Done():
	case err := <-failures:
		if err != nil {
			runErr = err
		}
		cancel()
	}

	return errors.Join(runErr, a.shutdownAll(ctx))
}

// shutdownAll stops components in reverse start order. It runs on a context
// detached from the cancelled run context so teardown work can finish.
func (a *app) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.shutdownTimeout)
	defer cancel()

	var errs []error
	a.cron.Stop()
	if err := a.processor.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close command processor: %w", err))
	}
	if err := a.feed.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close feed service: %w", err))
	}
	if err := a.store.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close stats store: %w", err))
	}

	return errors.Join(errs...)
}
