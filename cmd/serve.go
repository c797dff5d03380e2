package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/subrender/internal/config"
	"github.com/MimeLyc/subrender/internal/httpapi"
	"github.com/MimeLyc/subrender/internal/janitor"
	"github.com/MimeLyc/subrender/internal/persistence"
	"github.com/MimeLyc/subrender/internal/render"
	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/internal/transcribe"
	"github.com/MimeLyc/subrender/internal/translator"
	"github.com/MimeLyc/subrender/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type backgroundService interface {
	Start(ctx context.Context) error
	Stop()
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	cfg, settingsStore, err := loadConfig(opts, config.WithHTTPAddr(addr))
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	for _, dir := range []string{cfg.System.DataDir, cfg.Render.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance is using %s", cfg.System.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release lock: %v", err)
		}
	}()

	db, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	store := renderjobs.NewStore(
		renderjobs.WithPersister(db),
		renderjobs.WithDefaultTTL(cfg.Render.DefaultTTL),
	)
	if _, err := store.Restore(ctx); err != nil {
		log.Warn("Render job restore failed: %v", err)
	}

	tr := translator.New(translatorConfig(cfg))
	captions := service.NewCaptionService(
		transcribe.New(transcribe.Options{
			WhisperPath: cfg.Transcribe.WhisperExecutable,
			ModelPath:   cfg.Transcribe.WhisperModel,
			FFmpegPath:  cfg.Transcribe.FFmpegPath,
			Timeout:     cfg.Transcribe.Timeout,
		}),
		tr,
		service.WithCaptionCache(db, 0),
	)
	renders := service.NewRenderService(
		render.New(render.Options{
			Command:   cfg.Render.Command,
			Args:      cfg.Render.Args,
			OutputDir: cfg.Render.OutputDir,
			Timeout:   cfg.Render.Timeout,
		}),
		store,
		cfg.Render.DefaultTTL,
		cfg.Render.MaxTTL,
	)

	jan := janitor.New(janitor.Options{
		Dir:      cfg.Render.OutputDir,
		Grace:    cfg.Janitor.Grace,
		CronExpr: cfg.Janitor.CronExpr,
		Registry: store,
		Cache:    db,
	})

	settingsStore.OnChange(func(next config.RuntimeSettings) {
		updated := *cfg
		config.WithRuntimeSettings(next)(&updated)
		tr.Reconfigure(translatorConfig(&updated))
	})

	srv := httpapi.NewServer(captions, renders, store,
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return jan.Reschedule(ctx, next.JanitorCron)
		}),
		httpapi.WithJanitor(jan),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		httpapi.WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes),
	)

	health := captions.TranscriberHealth()
	log.Info("Starting server on %s (whisper=%t model=%t ffmpeg=%t translator=%t renderer=%t)",
		cfg.HTTP.Addr, health.ExecutableExists, health.ModelExists, health.FFmpegAvailable,
		captions.TranslatorAvailable(), renders.RendererAvailable())

	return runWithComponents(ctx, cfg, jan, srv)
}

// runWithComponents runs the background service and the HTTP server until ctx
// is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, bg backgroundService, httpSrv httpServer) error {
	if err := bg.Start(ctx); err != nil {
		return err
	}
	defer bg.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
