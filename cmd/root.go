package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subrender/internal/config"
	"github.com/MimeLyc/subrender/internal/translator"
	"github.com/MimeLyc/subrender/pkg/log"
)

type rootOptions struct {
	envFile string
	dataDir string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "subrender",
		Short:         "Caption transcription, translation and render artifact server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "State directory (overrides DATA_DIR)")

	serveCmd := newServeCommand(opts)
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newTranslateCommand(opts))
	rootCmd.AddCommand(newRendersCommand())
	return rootCmd
}

// loadConfig builds the configuration and overlays the persisted runtime settings.
func loadConfig(opts *rootOptions, extra ...config.Option) (*config.Config, *config.RuntimeSettingsStore, error) {
	cfgOpts := append([]config.Option{config.WithDataDir(opts.dataDir)}, extra...)
	cfg, err := config.NewFromEnv(cfgOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	settingsPath := config.RuntimeSettingsFilePath(cfg.System.DataDir)
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		cfg, err = config.NewFromEnv(append(cfgOpts, config.WithRuntimeSettings(settings))...)
		if err != nil {
			return nil, nil, fmt.Errorf("apply runtime settings: %w", err)
		}
		log.Info("Loaded runtime settings from %s", settingsPath)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, nil, fmt.Errorf("read runtime settings: %w", err)
	}

	store, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// setupLogger installs the global logger. The returned func closes the log
// file when LOG_FILE is set.
func setupLogger(cfg *config.Config) (func(), error) {
	level := log.ParseLevel(cfg.System.LogLevel)
	if cfg.System.LogFile == "" {
		log.InitLogger(level)
		log.GetLogger().SetFormat(cfg.System.LogFormat)
		return func() {}, nil
	}

	fileLogger, err := log.NewFileLogger(cfg.System.LogFile, level)
	if err != nil {
		return nil, err
	}
	fileLogger.SetFormat(cfg.System.LogFormat)
	log.SetLogger(fileLogger.Logger)
	return func() {
		if err := fileLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}, nil
}

func translatorConfig(cfg *config.Config) translator.Config {
	return translator.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.APIURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.Timeout) * time.Second,
		Target:  cfg.Translate.TargetLanguage,
		Enabled: cfg.Translate.Enabled,
	}
}
