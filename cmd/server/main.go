package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viniciushammett/go-behaviour-monitor/internal/api"
	"github.com/viniciushammett/go-behaviour-monitor/internal/coordinator"
	"github.com/viniciushammett/go-behaviour-monitor/internal/correlation"
	"github.com/viniciushammett/go-behaviour-monitor/internal/entities"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ingest"
	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
	"github.com/viniciushammett/go-behaviour-monitor/internal/metrics"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ml"
	"github.com/viniciushammett/go-behaviour-monitor/internal/notify"
	"github.com/viniciushammett/go-behaviour-monitor/internal/pattern"
	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
	"github.com/viniciushammett/go-behaviour-monitor/internal/tracing"
)

type Config struct {
	Server struct {
		Addr        string `yaml:"addr"`
		TickSeconds int    `yaml:"tickSeconds"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	AuthToken    string `yaml:"authToken"`
	Timezone     string `yaml:"timezone"`
	EntitiesFile string `yaml:"entitiesFile"`

	Sensitivity        string `yaml:"sensitivity"` // low|medium|high
	LearningPeriodDays int    `yaml:"learningPeriodDays"`
	TrackAttributes    bool   `yaml:"trackAttributes"`
	RetrainPeriodDays  int    `yaml:"retrainPeriodDays"`

	ML struct {
		Enabled      bool `yaml:"enabled"`
		LearningDays int  `yaml:"learningDays"`
		Trees        int  `yaml:"trees"`
		Depth        int  `yaml:"depth"`
		WindowSize   int  `yaml:"windowSize"`
	} `yaml:"ml"`

	Correlation struct {
		WindowSeconds    int     `yaml:"windowSeconds"`
		ToleranceFactor  float64 `yaml:"toleranceFactor"`
		MinCoOccurrences int     `yaml:"minCoOccurrences"`
	} `yaml:"correlation"`

	Notifications struct {
		Enabled      bool   `yaml:"enabled"`
		DedupMinutes int    `yaml:"dedupMinutes"`
		SlackWebhook string `yaml:"slackWebhook"`
	} `yaml:"notifications"`

	Tracing struct {
		Enabled      bool    `yaml:"enabled"`
		ServiceName  string  `yaml:"serviceName"`
		OTLPEndpoint string  `yaml:"otlpEndpoint"`
		SampleRatio  float64 `yaml:"sampleRatio"`
	} `yaml:"tracing"`
}

func main() {
	log := logger.New(env("LOG_LEVEL", "info"))
	cfgPath := env("CONFIG_PATH", "configs/config.yaml")

	var cfg Config
	if b, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(b, &cfg)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.TickSeconds <= 0 {
		cfg.Server.TickSeconds = 60
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/behaviour-monitor.db"
	}
	if cfg.EntitiesFile == "" {
		cfg.EntitiesFile = "configs/entities.yaml"
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Error().Err(err).Str("tz", cfg.Timezone).Msg("invalid timezone, using UTC")
		}
	}

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	closer, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  first(cfg.Tracing.ServiceName, "go-behaviour-monitor"),
		OTLPEndpoint: first(cfg.Tracing.OTLPEndpoint, "localhost:4317"),
		SampleRatio:  ifzero(cfg.Tracing.SampleRatio, 1.0),
	})
	if err != nil {
		log.Error().Err(err).Msg("tracing init failed")
	}
	defer func() { _ = closer(context.Background()) }()

	// Store
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	// Entidades monitoradas
	ents, err := entities.LoadFromFile(cfg.EntitiesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load entities")
	}
	monitored := ents.IDs()
	if len(monitored) == 0 {
		log.Fatal().Msg("no monitored entities configured")
	}

	sensitivity := pattern.Sensitivity(first(cfg.Sensitivity, "medium"))

	// Analisadores
	analyzer := pattern.NewAnalyzer(log, monitored, sensitivity, cfg.LearningPeriodDays, loc)
	model := ml.NewModel(log, monitored, ml.Options{
		Enabled:        cfg.ML.Enabled,
		LearningDays:   cfg.ML.LearningDays,
		Trees:          cfg.ML.Trees,
		Depth:          cfg.ML.Depth,
		WindowSize:     cfg.ML.WindowSize,
		ScoreThreshold: ml.ScoreThresholdFor(string(sensitivity)),
	})
	corr := correlation.NewLearner(log, correlation.Options{
		Window:           time.Duration(cfg.Correlation.WindowSeconds) * time.Second,
		ToleranceFactor:  cfg.Correlation.ToleranceFactor,
		MinCoOccurrences: cfg.Correlation.MinCoOccurrences,
	})

	// Notifier
	notifier := notify.NewSlack(cfg.Notifications.Enabled, cfg.Notifications.SlackWebhook)

	// Coordenador
	coord := coordinator.New(log, db, analyzer, model, corr, notifier, coordinator.Config{
		MonitoredEntities:    monitored,
		Sensitivity:          sensitivity,
		TrackAttributes:      cfg.TrackAttributes,
		NotificationsEnabled: cfg.Notifications.Enabled,
		DedupInterval:        time.Duration(cfg.Notifications.DedupMinutes) * time.Minute,
		RetrainPeriodDays:    cfg.RetrainPeriodDays,
		Location:             loc,
	})
	coord.Setup()
	defer coord.Shutdown()

	// Ciclo de avaliação
	go func() {
		t := time.NewTicker(time.Duration(cfg.Server.TickSeconds) * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				coord.Tick()
			}
		}
	}()

	// Ingest + API
	ing := ingest.New(coord)
	srv := api.NewServer(api.Deps{
		Log: log, Store: db, Ingest: ing, Coordinator: coord, AuthToken: cfg.AuthToken,
	}, api.Config{Addr: cfg.Server.Addr})
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func ifzero(f, def float64) float64 {
	if f == 0 {
		return def
	}
	return f
}

func first(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
