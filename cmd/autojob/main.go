package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autojob/internal/agent"
	"autojob/internal/cli"
	"autojob/internal/config"
	"autojob/internal/logger"
	"autojob/internal/migrations"
	"autojob/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfg *config.Cfg
	log *logger.Zap
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autojob",
		Short:         "Агент, который заполняет формы откликов на вакансии",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			log, err = logger.NewWithFile(cfg.Logger.Env, cfg.Logger.Level, logger.FileOptions{
				Path:       cfg.Logger.File,
				MaxSizeMB:  cfg.Logger.MaxSizeMB,
				MaxBackups: cfg.Logger.MaxBackups,
				MaxAgeDays: cfg.Logger.MaxAgeDays,
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	root.AddCommand(serveCmd(), applyCmd(), consoleCmd(), migrateCmd())
	return root
}

func serveCmd() *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP API и воркер очереди",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			addr := net.JoinHostPort(cfg.App.Host, cfg.App.Port)
			srv := server.New(addr, a.repo, a.scheduler, a.llm, log)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx)
			})
			g.Go(func() error {
				if autostart || cfg.Scheduler.Autostart {
					a.scheduler.Start(ctx)
				}
				<-ctx.Done()
				a.scheduler.Stop()
				a.scheduler.Wait()
				return nil
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Остановлено")
			return nil
		},
	}
	cmd.Flags().BoolVar(&autostart, "autostart", false, "сразу запустить разбор очереди")
	return cmd
}

func applyCmd() *cobra.Command {
	var resume string
	var preNavigate bool
	cmd := &cobra.Command{
		Use:   "apply <url>",
		Short: "Подать отклик на одну вакансию без очереди",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			link := strings.TrimSpace(args[0])
			if preNavigate {
				tab, res, err := a.applier.Open(cmd.Context(), link)
				if tab != nil {
					defer tab.Close()
				}
				if err != nil {
					return err
				}
				log.Info("Переход к форме завершён, Ctrl+C закрывает браузер",
					zap.Bool("form", res.Success), zap.String("url", tab.URL()))
				<-cmd.Context().Done()
				return nil
			}

			res, err := a.applier.Apply(cmd.Context(), agent.Job{Link: link, PreferredResume: resume})
			if err != nil {
				return err
			}
			log.Info("Итог",
				zap.Bool("success", res.Success),
				zap.String("class", string(res.FailureClass)),
				zap.String("code", res.FailureCode),
				zap.Int("steps", res.Steps))
			if !res.Success {
				return fmt.Errorf("отклик не отправлен: %s %s", res.FailureCode, res.ManualReasonText)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "путь к резюме из белого списка")
	cmd.Flags().BoolVar(&preNavigate, "pre-navigate", false, "только довести до формы заявки")
	return cmd
}

func consoleCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Интерактивная консоль",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			console := cli.New(cli.Deps{
				Store:      a.repo,
				Runner:     a.scheduler,
				Control:    a.scheduler,
				Models:     a.llm,
				Opener:     a.applier,
				Persistent: a.launcher,
			}, history, log)
			console.Run(cmd.Context())

			a.scheduler.Stop()
			a.scheduler.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&history, "history", ".autojob-history", "файл истории команд")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Применить или откатить миграции",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] == "down" {
				return migrations.Down(cfg, log)
			}
			return migrations.Run(cfg, log)
		},
	}
}
