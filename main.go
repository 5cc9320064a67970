package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openhealer/healer/healer"
	"github.com/openhealer/healer/healer/journal"
	"github.com/openhealer/healer/internal/config"
	"github.com/openhealer/healer/internal/daemon"
	"github.com/openhealer/healer/internal/logging"
)

// version is overridden at release build time via -ldflags.
var version = "dev"

var (
	configFlag      string
	foregroundFlag  bool
	printConfigPath bool
)

var rootCmd = &cobra.Command{
	Use:     "healer",
	Short:   "Supervise a set of processes and restart them when they fail",
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "path to the YAML config file")
	rootCmd.Flags().BoolVar(&foregroundFlag, "foreground", false, "skip daemonization and stay attached to the terminal")
	rootCmd.Flags().BoolVar(&printConfigPath, "print-config-path", false, "resolve and print the effective config path, then exit")
	rootCmd.Flags().BoolP("version", "V", false, "print the version and exit")
	rootCmd.SetVersionTemplate("healer {{.Version}}\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath implements the precedence order from the CLI contract:
// --config flag, then $HEALER_CONFIG, then ./config.yaml, then
// /etc/healer/config.yaml.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := os.Getenv("HEALER_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return "/etc/healer/config.yaml"
}

func run(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	if printConfigPath {
		fmt.Println(path)
		return nil
	}

	foreground := foregroundFlag || os.Getenv("HEALER_NO_DAEMON") != ""

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logHandle, err := logging.Init(cfg.LogLevel, cfg.LogDirectory, foreground)
	if err != nil {
		return errors.Wrap(err, "initializing logger")
	}
	defer logHandle.Close()

	if err := os.MkdirAll(cfg.PIDFileDirectory, 0750); err != nil {
		return errors.Wrap(err, "creating pid file directory")
	}

	pidFilePath := filepath.Join(cfg.PIDFileDirectory, "healer.pid")

	if !foreground && !daemon.IsChild() {
		return daemon.Daemonize(daemon.Config{
			PIDFilePath:      pidFilePath,
			WorkingDirectory: cfg.WorkingDirectory,
		})
	}

	if err := os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0640); err != nil {
		return errors.Wrap(err, "writing pid file")
	}

	return serve(cfg, path, logHandle.Logger)
}

func serve(cfg *config.Config, configPath string, log zerolog.Logger) error {
	journalPath := filepath.Join(cfg.PIDFileDirectory, "journal.json")

	fileJournal, err := journal.NewFileLockJournaler(journalPath)
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			log.Warn().Msg("healer is already running; exiting")
			return nil
		}
		return errors.Wrap(err, "acquiring journal lock")
	}
	defer fileJournal.Close()

	sink := journal.MultiWriter(fileJournal, journal.NewHumanWriter("stderr", os.Stderr))

	spawner := healer.NewProcessSpawner(cfg.LogDirectory, cfg.PIDFileDirectory, cfg.WorkingDirectory)
	rt := healer.NewRuntime(configPath, sink, fileJournal, spawner, log)

	if err := rt.Takeover(); err != nil {
		log.Warn().Err(err).Msg("could not recover previous run's state from journal")
	}

	rt.Load(cfg.ToSpecs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	dispatcher := healer.NewSignalDispatcher(configPath, func() error {
		return reload(rt, configPath, log)
	}, func(shutdownCtx context.Context) error {
		cancel()
		return rt.Shutdown(shutdownCtx)
	})

	if err := dispatcher.Run(ctx); err != nil {
		return err
	}

	return <-runErrCh
}

func reload(rt *healer.Runtime, configPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("reload failed, retaining previous configuration")
		return err
	}

	rt.Load(cfg.ToSpecs())
	log.Info().Msg("reloaded configuration")
	return nil
}
