// Package main is the entry point for the WebArchiver stager node: it
// loads dropped job definitions, replicates job state across peer stagers,
// shards each job's frontier onto attached crawlers, mirrors backups, and
// accepts finished WARC uploads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/jobconfig"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/stagerrole"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	host string
	port int

	stagerHost string
	stagerPort int

	warcDir    string
	newJobsDir string

	maxStager  int
	maxBackups int
	maxSpace   int64

	pingInterval      time.Duration
	jobsCheckInterval time.Duration
	ingestInterval    time.Duration

	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "webarchiver-stager",
		Short: "WebArchiver stager — owns job frontiers and coordinates crawlers",
		Long: `The stager holds the authoritative copy of each job's URL frontier,
assigns URLs to attached crawlers, mirrors frontier slices onto peer
stagers as backups, counts URL-quota tokens, and accepts finished WARCs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newAddJobCmd(cfg))

	root.PersistentFlags().StringVar(&cfg.host, "host", envOrDefault("WEBARCHIVER_HOST", "127.0.0.1"), "address this node advertises to peers")
	root.PersistentFlags().IntVar(&cfg.port, "port", 0, "listen port (random in [3000,6000) if unset)")
	root.PersistentFlags().StringVar(&cfg.stagerHost, "stager-host", envOrDefault("WEBARCHIVER_STAGER_HOST", ""), "bootstrap stager peer host (optional)")
	root.PersistentFlags().IntVar(&cfg.stagerPort, "stager-port", 0, "bootstrap stager peer port (optional)")
	root.PersistentFlags().StringVar(&cfg.warcDir, "warc-dir", envOrDefault("WEBARCHIVER_WARC_DIR", "./warc"), "directory received WARC files are persisted under")
	root.PersistentFlags().StringVar(&cfg.newJobsDir, "new-jobs-dir", envOrDefault("WEBARCHIVER_NEW_JOBS_DIR", "./jobs/new"), "directory scanned for dropped job definitions")
	root.PersistentFlags().IntVar(&cfg.maxStager, "max-stager", 2, "maximum co-owner stagers per job (MAX_STAGER)")
	root.PersistentFlags().IntVar(&cfg.maxBackups, "max-backups", 1, "number of backup targets per frontier slice (MAX_BACKUPS)")
	root.PersistentFlags().Int64Var(&cfg.maxSpace, "max-space", 10<<30, "bytes of WARC storage this stager will reserve for uploads (MAX_SPACE)")
	root.PersistentFlags().DurationVar(&cfg.pingInterval, "ping-interval", 15*time.Second, "liveness ping period (PING_TIME)")
	root.PersistentFlags().DurationVar(&cfg.jobsCheckInterval, "jobs-check-interval", 5*time.Second, "frontier share_urls period (JOBS_CHECK_TIME)")
	root.PersistentFlags().DurationVar(&cfg.ingestInterval, "ingest-interval", 10*time.Second, "new-jobs-dir scan period")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("WEBARCHIVER_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	return root
}

func newAddJobCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "add-job <definition-file>",
		Short: "Parse a job definition and queue it for the running stager",
		Long: `Parses a flat key/value job definition file, resolves its seed-URL
sources, and drops the serialized job into the new-jobs directory, where
the running stager's ingest loop picks it up on its next scan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			settings, err := jobconfig.Load(args[0], name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.newJobsDir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", cfg.newJobsDir, err)
			}
			path, err := jobconfig.Save(cfg.newJobsDir, settings)
			if err != nil {
				return err
			}
			fmt.Printf("queued job %s at %s\n", settings.Identifier, path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webarchiver-stager %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	port := cfg.port
	if port == 0 {
		port = netaddr.RandomPort()
	}
	self := netaddr.New(cfg.host, port)

	logger.Info("starting webarchiver stager",
		zap.String("version", version),
		zap.Stringer("self", self),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, dir := range []string{cfg.warcDir, cfg.newJobsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	node, err := transport.New(self, cfg.pingInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to build transport node: %w", err)
	}

	st := stagerrole.New(node, stagerrole.Config{
		MaxStager:         cfg.maxStager,
		MaxBackups:        cfg.maxBackups,
		MaxSpace:          cfg.maxSpace,
		WarcDir:           cfg.warcDir,
		NewJobsDir:        cfg.newJobsDir,
		JobsCheckInterval: cfg.jobsCheckInterval,
		IngestInterval:    cfg.ingestInterval,
	}, logger)

	if cfg.stagerHost != "" && cfg.stagerPort != 0 {
		bootstrap := netaddr.New(cfg.stagerHost, cfg.stagerPort)
		if err := st.Bootstrap(bootstrap); err != nil {
			logger.Warn("failed to dial bootstrap stager", zap.Stringer("addr", bootstrap), zap.Error(err))
		}
	}

	logger.Info("webarchiver stager listening", zap.Int("port", port))
	err = node.Run(ctx)
	if err != nil && ctx.Err() != nil {
		logger.Info("webarchiver stager stopped")
		return nil
	}
	return err
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
