// Command sentineld runs the deployment-integrity and canary-gating daemon.
//
// Default mode serves the HTTP surface and the background verification loop.
// With -snapshot it builds and persists the baseline manifest for the
// current tree (the deploy-time step) and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/canaryops/sentinel/internal/alerting"
	"github.com/canaryops/sentinel/internal/api"
	"github.com/canaryops/sentinel/internal/canary"
	"github.com/canaryops/sentinel/internal/config"
	"github.com/canaryops/sentinel/internal/health"
	xlog "github.com/canaryops/sentinel/internal/log"
	"github.com/canaryops/sentinel/internal/manifest"
	"github.com/canaryops/sentinel/internal/metrics"
	"github.com/canaryops/sentinel/internal/ratelimit"
	"github.com/canaryops/sentinel/internal/signature"
	"github.com/canaryops/sentinel/internal/verify"
)

func main() {
	snapshot := flag.Bool("snapshot", false, "build and persist a baseline manifest, then exit")
	flag.Parse()

	cfg := config.FromEnv()
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "sentinel"})
	logger := xlog.WithComponent("main")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ignoreFile := cfg.IgnoreFile
	if ignoreFile == "" {
		ignoreFile = filepath.Join(cfg.Root, manifest.IgnoreConfigFile)
	}
	policy, err := manifest.NewIgnorePolicy(ignoreFile, cfg.IgnoreExtra)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve ignore policy")
	}

	builder := manifest.NewBuilder(cfg.Root, cfg.HashAlgorithm, cfg.Mode, policy)
	store := manifest.NewStore(cfg.DataDir)
	signer := signature.New(cfg.SigningKey)

	if *snapshot {
		if err := runSnapshot(context.Background(), cfg, builder, store, signer); err != nil {
			logger.Fatal().Err(err).Msg("snapshot failed")
		}
		return
	}

	if err := serve(cfg, builder, store, signer); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}

// runSnapshot is the deploy-time path: fingerprint the tree, persist the
// baseline atomically, sign it, and record provenance.
func runSnapshot(ctx context.Context, cfg config.Config, builder *manifest.Builder, store *manifest.Store, signer *signature.Service) error {
	logger := xlog.WithComponent("snapshot")

	m, stats, err := builder.Build(ctx, cfg.Version)
	if err != nil {
		return err
	}
	if err := store.Save(m, signer); err != nil {
		return err
	}
	if err := store.SaveProvenance(m.DeploymentID, cfg.GitSHA, time.Now(), signer); err != nil {
		return err
	}

	logger.Info().
		Str("event", "snapshot.completed").
		Str("deployment_id", m.DeploymentID).
		Int("file_count", m.FileCount).
		Int64("bytes_hashed", stats.BytesHashed).
		Dur("duration", stats.Duration).
		Bool("signed", signer.Enabled()).
		Msg("baseline manifest persisted")

	return nil
}

func serve(cfg config.Config, builder *manifest.Builder, store *manifest.Store, signer *signature.Service) error {
	logger := xlog.WithComponent("main")

	verifier := verify.New(store, builder, signer, verify.Config{
		Mode:          cfg.Mode,
		Production:    cfg.Production,
		SpikeFraction: cfg.SpikeFraction,
		MaxNewFiles:   cfg.MaxNewFiles,
	})
	worker := verify.NewWorker(verifier, cfg.VerifyInterval)

	tracker := metrics.NewTracker(metrics.DefaultRetention, metrics.DefaultMaxSamples)
	readiness := metrics.NewReadiness(metrics.DefaultAveragingWindow)

	emitter := alerting.NewEmitter(
		alerting.NewDedupeCache(cfg.DedupeTTL, cfg.DedupeMaxKeys),
		alerting.NewSampler(cfg.AlertsPerSecond),
		alerting.NewFailureTracker(),
	)

	gate := canary.New(tracker, readiness, worker, emitter, canary.Thresholds{
		LatencyP95Ms:      cfg.LatencyP95ThresholdMS,
		ErrorRate:         cfg.ErrorRateThreshold,
		ReadinessFailRate: cfg.ReadinessFailThresh,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RPS:             rate.Limit(cfg.RateRPS),
		Burst:           cfg.RateBurst,
		CleanupInterval: 5 * time.Minute,
	})

	healthMgr := health.NewManager(cfg.Version)
	healthMgr.RegisterChecker(health.NewFileChecker("baseline_checksums", filepath.Join(cfg.DataDir, manifest.ChecksumsFile)))
	healthMgr.RegisterChecker(health.NewLastVerifyChecker(worker.Last, 3*cfg.VerifyInterval))

	server := api.NewServer(api.Deps{
		Config:    cfg,
		Gate:      gate,
		Worker:    worker,
		Tracker:   tracker,
		Readiness: readiness,
		Failures:  emitter.Failures(),
		Limiter:   limiter,
		Health:    healthMgr,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Start(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info().
			Str("event", "server.listening").
			Str("addr", cfg.Listen).
			Bool("production", cfg.Production).
			Msg("sentinel listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
