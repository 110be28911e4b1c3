package main

import (
	"context"
	"errors"
	"fmt"

	"autojob/internal/agent"
	"autojob/internal/browser"
	"autojob/internal/config"
	"autojob/internal/database"
	"autojob/internal/llm"
	"autojob/internal/logger"
	"autojob/internal/migrations"
	"autojob/internal/planner"
	"autojob/internal/scheduler"
	"autojob/internal/uploads"

	"go.uber.org/zap"
)

// app собранные зависимости одной команды.
type app struct {
	cfg       *config.Cfg
	log       *logger.Zap
	db        *database.Database
	repo      *database.JobRepository
	sink      *database.LogSink
	llm       *llm.Client
	applier   *agent.Applier
	scheduler *scheduler.Scheduler
	launcher  agent.Launcher
}

func newApp(cfg *config.Cfg, log *logger.Zap) (*app, error) {
	if cfg.OpenAI.KeyAI == "" {
		return nil, errors.New("OPENAI_API_KEY не задан")
	}

	if err := migrations.Run(cfg, log); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	db, err := database.New(cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db, repo: database.NewJobRepository(db.DB)}
	a.sink = database.NewLogSink(a.repo, log, 0)

	profile, err := config.LoadProfile(cfg.Profile.Path)
	if err != nil {
		a.close()
		return nil, err
	}
	if profile.Empty() {
		log.Warn("Анкета пользователя не заполнена", zap.String("path", cfg.Profile.Path))
	}
	guidelines := config.LoadGuidelines(cfg.Profile.GuidelinesPath)

	a.llm = llm.NewClient(llm.Options{
		APIKey:            cfg.OpenAI.KeyAI,
		BaseURL:           cfg.OpenAI.BaseURL,
		Models:            cfg.OpenAI.ModelChain(),
		Temperature:       cfg.OpenAI.Temperature,
		MaxTokens:         cfg.OpenAI.MaxTokens,
		RequestsPerMinute: cfg.OpenAI.RequestsPerMin,
		TokensPerHour:     cfg.OpenAI.TokensPerHour,
	}, a.repo, log)

	a.launcher = agent.LauncherFunc(func(ctx context.Context) (agent.Tab, error) {
		return browser.Open(ctx, browser.Config{
			Headless:     cfg.Browser.Headless,
			UserDataDir:  cfg.Browser.UserDataDir,
			BrowsersPath: cfg.Browser.BrowsersPath,
			Display:      cfg.Browser.Display,
			Engine:       cfg.Browser.Engine,
			Timeout:      cfg.Browser.Timeout,
		}, log)
	})

	a.applier = agent.NewApplier(agent.ApplierDeps{
		Launcher:    a.launcher,
		LLM:         a.llm,
		Planner:     planner.New(a.llm, profile.PromptText(), guidelines, log),
		Files:       uploads.New(profile.Files.AllowedDirectories, cfg.Profile.VariantsDir),
		IntentModel: cfg.OpenAI.IntentModel,
		Sink:        a.sink,
		Steps:       a.repo,
		Log:         log,
	}, agent.ConfigFrom(cfg.Agent), cfg.Agent.ScreenshotDir)

	a.scheduler = scheduler.New(a.repo, a.applier, a.sink, scheduler.Config{
		PollInterval:  cfg.Scheduler.PollInterval,
		DefaultResume: profile.Files.DefaultResume,
	}, log)

	return a, nil
}

func (a *app) close() {
	if a.sink != nil {
		a.sink.Close()
	}
	a.db.Close(a.log)
}
