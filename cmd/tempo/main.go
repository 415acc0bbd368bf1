package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/halcyonworks/tempo/internal/config"
	"github.com/halcyonworks/tempo/internal/envload"
	"github.com/halcyonworks/tempo/internal/logging"
	"github.com/halcyonworks/tempo/internal/store"
	"github.com/halcyonworks/tempo/internal/version"
	"github.com/halcyonworks/tempo/kernel/assistant"
	"github.com/halcyonworks/tempo/kernel/model/providers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tempo:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		flagModel    = flag.String("model", "", "model name override")
		flagDataDir  = flag.String("data-dir", "", "data directory override")
		flagLogLevel = flag.String("log-level", "warn", "log level: debug|info|warn|error")
		flagNoStream = flag.Bool("no-stream", false, "disable streaming responses")
		flagVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *flagVersion {
		fmt.Println("tempo", version.String())
		return nil
	}

	if _, err := envload.LoadNearest(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *flagModel != "" {
		cfg.Model = *flagModel
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
	}

	logger, err := logging.New(*flagLogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.APIKey == "" {
		// Construction proceeds; the first send will fail instead.
		logger.Warn("no API key configured, set TEMPO_API_KEY or GEMINI_API_KEY")
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	llm, err := providers.NewGemini(providers.Config{
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}

	mgr, err := assistant.New(assistant.Config{
		Model:         llm,
		Logger:        logger,
		MaxToolRounds: cfg.MaxToolRounds,
		MaxRetries:    cfg.MaxRetries,
	}, store.NewExecutors(st))
	if err != nil {
		return err
	}
	defer mgr.Close()

	logger.Info("tempo starting",
		zap.String("model", cfg.Model),
		zap.String("data_dir", cfg.DataDir),
	)

	c, err := newConsole(consoleConfig{
		Manager:     mgr,
		HistoryFile: cfg.HistoryPath(),
		Stream:      !*flagNoStream,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Run()
}
