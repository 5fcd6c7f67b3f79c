// Package main is the entry point for the WebArchiver crawler node: it
// attaches to one or more stagers, receives URL assignments and quota
// grants, runs the fetch driver against them, and uploads finished WARCs
// back to a stager.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/crawlerrole"
	"github.com/ArchiveTeam/WebArchiver/internal/fetch"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
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

	fetchBackend string
	binaryPath   string
	binaryName   string
	dockerSocket string
	dockerImage  string

	crawlsDir string
	seenDBDir string

	maxStager int

	pingInterval          time.Duration
	requestStagerInterval time.Duration
	urlQuotaInterval      time.Duration
	requestUploadInterval time.Duration
	workerTick            time.Duration

	minURLQuota    int64
	jobMaxWait     time.Duration
	jobMaxWaitURLs time.Duration
	jobMaxURLs     int

	dispatchRate  float64
	dispatchBurst int

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
		Use:   "webarchiver-crawler",
		Short: "WebArchiver crawler — fetches assigned URLs and uploads WARCs",
		Long: `The crawler attaches to one or more stagers, pulls URL assignments and
URL-quota grants, runs the configured fetch backend against them, and
negotiates uploading the resulting WARC files back to a stager.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.host, "host", envOrDefault("WEBARCHIVER_HOST", "127.0.0.1"), "address this node advertises to peers")
	root.PersistentFlags().IntVar(&cfg.port, "port", 0, "listen port (random in [3000,6000) if unset)")
	root.PersistentFlags().StringVar(&cfg.stagerHost, "stager-host", envOrDefault("WEBARCHIVER_STAGER_HOST", ""), "stager to bootstrap against (required)")
	root.PersistentFlags().IntVar(&cfg.stagerPort, "stager-port", 0, "stager port to bootstrap against (required)")

	root.PersistentFlags().StringVar(&cfg.fetchBackend, "fetch-backend", "exec", "fetch backend: exec or docker")
	root.PersistentFlags().StringVar(&cfg.binaryPath, "binary-path", "", "explicit path to the crawl binary (exec backend; falls back to PATH lookup)")
	root.PersistentFlags().StringVar(&cfg.binaryName, "binary-name", "webarchiver-fetch", "crawl binary name looked up on PATH when --binary-path is unset")
	root.PersistentFlags().StringVar(&cfg.dockerSocket, "docker-socket", "", "docker daemon socket path (docker backend; empty uses SDK default)")
	root.PersistentFlags().StringVar(&cfg.dockerImage, "docker-image", "webarchiver/fetch:latest", "image to run per fetch (docker backend)")

	root.PersistentFlags().StringVar(&cfg.crawlsDir, "crawls-dir", envOrDefault("WEBARCHIVER_CRAWLS_DIR", "./crawls"), "directory per-fetch working directories are created under (CRAWLS_DIRECTORY)")
	root.PersistentFlags().StringVar(&cfg.seenDBDir, "seen-db-dir", envOrDefault("WEBARCHIVER_SEEN_DB_DIR", "./seen"), "directory per-job seen-url sqlite databases are stored under")

	root.PersistentFlags().IntVar(&cfg.maxStager, "max-stager", 2, "maximum stager peers this crawler attaches to (MAX_STAGER)")
	root.PersistentFlags().DurationVar(&cfg.pingInterval, "ping-interval", 15*time.Second, "liveness ping period (PING_TIME)")
	root.PersistentFlags().DurationVar(&cfg.requestStagerInterval, "request-stager-interval", 30*time.Second, "REQUEST_STAGER retry period (REQUEST_STAGER_TIME)")
	root.PersistentFlags().DurationVar(&cfg.urlQuotaInterval, "url-quota-interval", 5*time.Second, "URL-quota request period (URL_QUOTA_TIME)")
	root.PersistentFlags().DurationVar(&cfg.requestUploadInterval, "request-upload-interval", 10*time.Second, "upload permission retry period (REQUEST_UPLOAD_TIME)")
	root.PersistentFlags().DurationVar(&cfg.workerTick, "worker-tick", time.Second, "fetch dispatch gate tick period")

	root.PersistentFlags().Int64Var(&cfg.minURLQuota, "min-url-quota", 10, "minimum URL-quota balance before a fetch is dispatched (CRAWLER_MIN_URL_QUOTA)")
	root.PersistentFlags().DurationVar(&cfg.jobMaxWait, "job-max-wait", 30*time.Second, "max wait before dispatching an under-full batch (JOB_MAX_WAIT)")
	root.PersistentFlags().DurationVar(&cfg.jobMaxWaitURLs, "job-max-wait-urls", 5*time.Second, "max wait since the last URL was queued before dispatching (JOB_MAX_WAIT_URLS)")
	root.PersistentFlags().IntVar(&cfg.jobMaxURLs, "job-max-urls", 50, "queued-URL count that makes a fetch due without waiting (JOB_MAX_URLS)")

	root.PersistentFlags().Float64Var(&cfg.dispatchRate, "dispatch-rate", 4, "max fetch dispatches per second across all jobs (rate smoothing)")
	root.PersistentFlags().IntVar(&cfg.dispatchBurst, "dispatch-burst", 4, "dispatch burst allowance (rate smoothing)")

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("WEBARCHIVER_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webarchiver-crawler %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.stagerHost == "" || cfg.stagerPort == 0 {
		return fmt.Errorf("--stager-host and --stager-port are required: a crawler cannot bootstrap without one")
	}

	port := cfg.port
	if port == 0 {
		port = netaddr.RandomPort()
	}
	self := netaddr.New(cfg.host, port)

	logger.Info("starting webarchiver crawler",
		zap.String("version", version),
		zap.Stringer("self", self),
		zap.String("fetch_backend", cfg.fetchBackend),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, dir := range []string{cfg.crawlsDir, cfg.seenDBDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	driver, err := buildDriver(cfg)
	if err != nil {
		return fmt.Errorf("failed to build fetch driver: %w", err)
	}

	node, err := transport.New(self, cfg.pingInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to build transport node: %w", err)
	}

	cr := crawlerrole.New(node, crawlerrole.Config{
		MaxStager:             cfg.maxStager,
		RequestStagerInterval: cfg.requestStagerInterval,
		URLQuotaInterval:      cfg.urlQuotaInterval,
		RequestUploadInterval: cfg.requestUploadInterval,
		WorkerTick:            cfg.workerTick,
		MinURLQuota:           cfg.minURLQuota,
		JobMaxWait:            cfg.jobMaxWait,
		JobMaxWaitURLs:        cfg.jobMaxWaitURLs,
		JobMaxURLs:            cfg.jobMaxURLs,
		CrawlsDir:             cfg.crawlsDir,
		SeenDBDir:             cfg.seenDBDir,
		Driver:                driver,
		DispatchRate:          cfg.dispatchRate,
		DispatchBurst:         cfg.dispatchBurst,
	}, logger)

	bootstrap := netaddr.New(cfg.stagerHost, cfg.stagerPort)
	if err := cr.Bootstrap(bootstrap); err != nil {
		return fmt.Errorf("failed to dial bootstrap stager %s: %w", bootstrap, err)
	}

	logger.Info("webarchiver crawler listening", zap.Int("port", port))
	err = node.Run(ctx)
	if err != nil && ctx.Err() != nil {
		logger.Info("webarchiver crawler stopped")
		return nil
	}
	return err
}

func buildDriver(cfg *config) (fetch.Driver, error) {
	switch cfg.fetchBackend {
	case "docker":
		return fetch.NewDockerDriver(cfg.dockerSocket, cfg.dockerImage)
	case "exec", "":
		extractor := fetch.NewExtractor(filepath.Join(cfg.crawlsDir, ".bin"))
		path, err := extractor.Resolve(cfg.binaryPath, cfg.binaryName)
		if err != nil {
			return nil, err
		}
		return fetch.NewExecDriver(path), nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q (want exec or docker)", cfg.fetchBackend)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zcfg zap.Config

	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zcfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
