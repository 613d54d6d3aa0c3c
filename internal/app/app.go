package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"relumon/internal/alerts"
	"relumon/internal/collector"
	"relumon/internal/config"
	"relumon/internal/db"
	"relumon/internal/history"
	"relumon/internal/notifier"
	"relumon/internal/registry"
	"relumon/internal/retention"
	"relumon/internal/scheduler"
	"relumon/internal/telemetry"
	"relumon/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db      *db.Repository
	history *history.Store
	source  *collector.Source

	scheduler *scheduler.Scheduler
	retention *retention.Service
	web       *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	store := history.NewStore(history.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.KeyPrefix,
	})
	source := collector.NewSource(collector.Options{
		Password:     cfg.NodePassword,
		Timeout:      cfg.FetchTimeout,
		Concurrency:  cfg.Workers * 2,
		SlowLogCount: cfg.SlowLogFetchCount,
	}, logger.With("module", "collector"))
	reg := registry.New(repo, source, store)

	mail := notifier.NewMail(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword, cfg.MailFrom, cfg.NotifyTimeout)
	tg := notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	channels := notifier.NewMulti(mail, tg)
	var sinks []scheduler.AlertSink
	for _, c := range channels.Channels() {
		sinks = append(sinks, c)
	}
	if len(sinks) == 0 {
		logger.Warn("no notification channel configured, alerts are only logged")
	}

	ret := retention.NewService(store, repo, cfg.SlowLogMaxCount, cfg.NoticeEventRetentionDays, logger.With("module", "retention"))
	fanout := telemetry.NewFanout(
		telemetry.NewPrometheusSink(cfg.PushgatewayURL, cfg.TelemetryTag),
		cfg.TelemetryTag, cfg.TelemetryKeys, cfg.FetchTimeout, logger.With("module", "telemetry"),
	)
	sched := scheduler.New(scheduler.Config{
		Workers:       cfg.Workers,
		MaxNodes:      cfg.CollectMaxNodes,
		Timeout:       cfg.FetchTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
		HistoryWindow: cfg.SlowLogMaxCount,
	}, scheduler.Deps{
		Registry:  reg,
		Source:    source,
		Evaluator: alerts.NewEngine(logger.With("module", "alerts")),
		Sinks:     sinks,
		Events:    repo,
		Publisher: fanout,
		SlowLogs:  ret,
	}, logger.With("module", "scheduler"))

	w := web.NewServer(repo, reg, channels, []web.ReadyCheck{
		{Name: "db", Ping: sqldb.PingContext},
		{Name: "redis", Ping: store.Ping},
	}, logger.With("module", "web"))

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		history:   store,
		source:    source,
		scheduler: sched,
		retention: ret,
		web:       w,
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "err", err)
		}
	}()

	collectTicker := time.NewTicker(a.cfg.CollectInterval)
	retentionTicker := time.NewTicker(6 * time.Hour)
	defer collectTicker.Stop()
	defer retentionTicker.Stop()

	// Immediate first run
	a.scheduler.RunCycle(ctx)
	a.retention.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case <-collectTicker.C:
			a.scheduler.RunCycle(ctx)
		case <-retentionTicker.C:
			a.retention.Run(ctx)
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	return errors.Join(a.source.Close(), a.history.Close(), a.db.DB().Close())
}
