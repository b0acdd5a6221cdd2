package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/config"
	"github.com/vultuk/whatsapp-translator/internal/constants"
	"github.com/vultuk/whatsapp-translator/internal/database"
	"github.com/vultuk/whatsapp-translator/internal/retry"
	"github.com/vultuk/whatsapp-translator/internal/service"
	"github.com/vultuk/whatsapp-translator/internal/tracing"
	"github.com/vultuk/whatsapp-translator/pkg/bridge"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/mdp/qrterminal/v3"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("whatsapp-translator %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting whatsapp-translator")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose || cfg.Bridge.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewManager(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The store opens with backoff so a transient lock from a previous
	// run does not kill startup.
	var db *database.Database
	backoff := retry.NewBackoff(retry.DefaultBackoffConfig())
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	sup := bridge.NewSupervisor(bridge.Config{
		BinaryPath:            cfg.Bridge.BinaryPath,
		DataDir:               cfg.Bridge.DataDir,
		Verbose:               cfg.Bridge.Verbose,
		SendTimeout:           time.Duration(cfg.Bridge.SendTimeoutSec) * time.Second,
		ProfilePictureTimeout: time.Duration(cfg.Bridge.ProfilePictureTimeoutSec) * time.Second,
		StopGrace:             time.Duration(cfg.Bridge.StopGraceSec) * time.Second,
		MaxImageUploadBytes:   int64(cfg.Media.MaxImageUploadSizeMB) * 1024 * 1024,
	}, logger)

	recorder := service.NewMessageRecorder(db, logger, int64(cfg.Media.MaxDownloadSizeMB)*1024*1024)
	sup.Router().AddHandler(recorder.HandleEvent)
	sup.Router().AddHandler(displayPairing(logger))

	if cfg.Server.Enabled {
		hub := NewHub(sup.Router(), logger)
		go hub.Run(ctx)

		server := NewServer(cfg.Server, db, sup, recorder, hub, logger)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("HTTP server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	return runBridge(ctx, cfg.Bridge.ReconnectOnExit, sup, logger, retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Bridge.ReconnectInitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Bridge.ReconnectMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  1, // Delay schedule only; the loop below owns attempts.
		Jitter:       true,
	}))
}

// runBridge supervises bridge process lifecycles until ctx is done.
// With reconnectOnExit off it returns after the first process exit;
// with it on, the subprocess is re-spawned with backoff.
func runBridge(ctx context.Context, reconnect bool, sup *bridge.Supervisor, logger *logrus.Logger, backoff *retry.Backoff) error {
	attempt := 0
	for {
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bridge: %w", err)
		}
		attempt++

		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
			defer cancel()
			return sup.Stop(stopCtx)
		case <-sup.Done():
		}

		if !reconnect {
			logger.Info("Bridge exited; reconnect is disabled")
			return nil
		}

		delay := backoff.Delay(attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Bridge exited, restarting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// displayPairing renders the pairing QR code in the terminal and
// clears it once the session is authenticated.
func displayPairing(logger *logrus.Logger) bridge.Handler {
	return func(ev types.Event) {
		switch e := ev.(type) {
		case *types.QREvent:
			fmt.Fprintln(os.Stdout, "Scan this QR code with the WhatsApp app:")
			qrterminal.GenerateHalfBlock(e.Data, qrterminal.L, os.Stdout)
		case *types.ConnectedEvent:
			logger.WithFields(logrus.Fields{
				"phone": e.Phone,
				"name":  e.Name,
			}).Info("Paired and connected")
		}
	}
}
