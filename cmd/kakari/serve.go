package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kakari/internal/config"
	"github.com/harunnryd/kakari/internal/confirm"
	"github.com/harunnryd/kakari/internal/controller"
	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/calendar"
	"github.com/harunnryd/kakari/internal/gateway/sheets"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
	"github.com/harunnryd/kakari/internal/intent"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/rowstore"
	"github.com/harunnryd/kakari/internal/scheduler"
	"github.com/harunnryd/kakari/internal/thread"
	"github.com/harunnryd/kakari/internal/validate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Slack events server",
	Long:  `Runs the webhook endpoint, the conversation flows, and the scheduled jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	rows, err := rowstore.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open row store: %w", err)
	}
	defer rows.Close()

	model, err := oracle.New(cfg.Oracle, rows)
	if err != nil {
		return fmt.Errorf("configure oracle: %w", err)
	}

	sheetsClient, err := sheets.New(ctx, cfg.Sheets)
	if err != nil {
		return fmt.Errorf("configure sheets gateway: %w", err)
	}
	members, err := sheetsClient.Roster(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	log.Info("roster loaded", "members", len(members.Names()))

	calClient, err := calendar.New(ctx, cfg.Calendar)
	if err != nil {
		return fmt.Errorf("configure calendar gateway: %w", err)
	}

	threads := thread.NewStore(rows)
	poster := slackgw.NewPoster(cfg.Slack.BotToken, log)

	ctrl := controller.New(controller.Deps{
		Threads:        threads,
		Classifier:     intent.NewClassifier(model, cfg.Conversation.ConfidenceThreshold),
		TaskExtractor:  extract.NewTaskExtractor(model, members),
		EventExtractor: extract.NewEventExtractor(model),
		Params:         extract.NewParams(model, members),
		TaskValidator:  validate.NewTaskValidator(model, members),
		EventValidator: validate.NewEventValidator(model),
		Confirms:       confirm.New(rows, model),
		Sheets:         sheetsClient,
		Calendar:       calClient,
		Poster:         poster,
		Oracle:         model,
		Conversation:   cfg.Conversation,
		Logger:         log,
	})

	events := slackgw.NewServer(cfg.Slack.SigningSecret, cfg.Slack.BotUserID, rows, ctrl.Handle, log)
	mux := http.NewServeMux()
	events.Routes(mux)

	readTimeout, err := config.DurationOrDefault(cfg.Server.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return err
	}
	writeTimeout, err := config.DurationOrDefault(cfg.Server.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return err
	}
	shutdownTimeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.New(log)
		if err := jobs.Register(cfg.Scheduler.ReminderSpec, scheduler.NewReminder(sheetsClient, poster, log)); err != nil {
			return err
		}
		if err := jobs.Register(cfg.Scheduler.RoutineSpec, scheduler.NewRoutine(sheetsClient, log)); err != nil {
			return err
		}
		jobs.Start()
		log.Info("scheduler started",
			"reminder_spec", cfg.Scheduler.ReminderSpec,
			"routine_spec", cfg.Scheduler.RoutineSpec)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}

	if jobs != nil {
		<-jobs.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
