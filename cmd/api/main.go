package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/vigia/internal/activity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/api"
	"github.com/saturnino-fabrica-de-software/vigia/internal/audit"
	"github.com/saturnino-fabrica-de-software/vigia/internal/cache"
	"github.com/saturnino-fabrica-de-software/vigia/internal/camera"
	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/database"
	"github.com/saturnino-fabrica-de-software/vigia/internal/evidence"
	"github.com/saturnino-fabrica-de-software/vigia/internal/hub"
	"github.com/saturnino-fabrica-de-software/vigia/internal/identity"
	"github.com/saturnino-fabrica-de-software/vigia/internal/inference"
	"github.com/saturnino-fabrica-de-software/vigia/internal/mediator"
	"github.com/saturnino-fabrica-de-software/vigia/internal/metrics"
	"github.com/saturnino-fabrica-de-software/vigia/internal/mqtt"
	"github.com/saturnino-fabrica-de-software/vigia/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/vigia/internal/provider/factory"
	"github.com/saturnino-fabrica-de-software/vigia/internal/repository"
	"github.com/saturnino-fabrica-de-software/vigia/internal/tracker"
	"github.com/saturnino-fabrica-de-software/vigia/internal/webhook"
	"github.com/saturnino-fabrica-de-software/vigia/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Vigia",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("face_provider", cfg.FaceProvider),
		slog.String("person_provider", cfg.PersonProvider),
		slog.String("sequence_provider", cfg.Activity.SequenceProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	identityRepo := repository.NewIdentityRepository(pool)
	cameraRepo := repository.NewCameraRepository(pool)
	attendanceRepo := repository.NewAttendanceRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)

	// Cameras
	cameras := camera.NewRegistry(cameraRepo, cfg.Cameras, logger)
	if err := cameras.Start(ctx); err != nil {
		return fmt.Errorf("failed to load cameras: %w", err)
	}
	defer cameras.Stop()

	// Identities
	store := identity.NewStore(cfg.Matching.MatchThreshold)
	names := cache.NewNames(identityRepo, cache.DefaultTTL, logger)
	auditSink := audit.NewSink(audit.NewSlogLogger(logger))
	enroll := &enrollment{
		loader: identity.NewLoader(store, identityRepo, logger),
		names:  names,
		audit:  auditSink,
	}
	if _, err := enroll.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load identities: %w", err)
	}
	listener := repository.NewEnrollmentListener(repository.PoolConnector(pool), enroll, logger)
	go listener.Run(ctx)

	// Detectors, serialized through one inference executor
	faces, err := factory.NewFaceAnalyzer(cfg)
	if err != nil {
		return err
	}
	people, err := factory.NewPersonDetector(ctx, cfg)
	if err != nil {
		return err
	}
	sequence, closeSequence, err := factory.NewSequenceClassifier(cfg)
	if err != nil {
		return err
	}
	defer closeSequence()

	executor := inference.New(inference.Config{
		QueueSize:   inference.DefaultQueueSize,
		CallTimeout: inference.DefaultCallTimeout,
	}, m, logger)
	defer executor.Close()

	faces = inference.FaceAnalyzer(executor, faces)
	people = inference.PersonDetector(executor, people)
	if sequence != nil {
		sequence = inference.SequenceClassifier(executor, sequence)
	}

	activityCfg := activity.DefaultConfig()
	activityCfg.RuleFloor = cfg.Activity.RuleFloor
	activityCfg.ConfidenceFloor = cfg.Matching.ConfidenceFloor
	classifier := activity.NewClassifier(activityCfg, sequence, logger)

	// Event sinks
	rooms := ws.NewHub(logger)
	go rooms.Run(ctx)

	fanout := mediator.NewFanout(m, logger)
	fanout.AddAttendance("attendance_repository", attendanceRepo)
	fanout.AddAlerts("alert_repository", alertRepo)
	fanout.Add("audit", auditSink)
	fanout.AddAlerts("websocket", rooms)
	defer fanout.Close()

	if cfg.MQTT.Broker != "" {
		mqttCfg := mqtt.DefaultConfig()
		mqttCfg.Broker = cfg.MQTT.Broker
		mqttCfg.ClientID = cfg.MQTT.ClientID
		mqttCfg.Username = cfg.MQTT.Username
		mqttCfg.Password = cfg.MQTT.Password
		mqttCfg.Topic = cfg.MQTT.Topic

		client, err := mqtt.NewClient(mqttCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create mqtt client: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			logger.Warn("mqtt broker unreachable, retrying in background", slog.Any("error", err))
		}
		defer client.Disconnect()
		fanout.Add("mqtt", mqtt.NewSink(client, cfg.MQTT.Topic))
	}

	if cfg.Webhook.URL != "" {
		hookCfg := webhook.DefaultConfig()
		hookCfg.URL = cfg.Webhook.URL
		hookCfg.Secret = cfg.Webhook.Secret
		hook, err := webhook.NewSink(hookCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create webhook sink: %w", err)
		}
		fanout.Add("webhook", hook)
	}

	recorder, err := evidence.New(evidence.Config{Dir: cfg.Evidence.Dir, Frames: cfg.Evidence.Frames}, logger)
	if err != nil {
		return fmt.Errorf("failed to create evidence recorder: %w", err)
	}

	med := mediator.New(mediator.Config{
		AttendanceDedup: cfg.Mediator.AttendanceDedup,
		AlertCooldown:   cfg.Mediator.AlertCooldown,
		QuietLabels:     cfg.Mediator.QuietLabels,
	}, fanout, m, logger, mediator.WithEvidence(recorder))
	defer med.Wait()

	// Frames
	frames := hub.New(hub.Config{
		QueueSize:     cfg.Hub.QueueSize,
		OfflineGrace:  cfg.Hub.OfflineGrace,
		IdleThreshold: hub.DefaultConfig().IdleThreshold,
	}, m, logger)
	defer frames.Close()

	pipe := pipeline.New(pipeline.Config{
		FrameDeadline: cfg.Pipeline.FrameDeadline,
		ProcessEveryN: cfg.Pipeline.ProcessEveryN,
		PruneInterval: pipeline.DefaultPruneInterval,
		Tracker: tracker.Config{
			IoUThreshold: cfg.Matching.IoUThreshold,
			Grace:        cfg.Matching.TrackGrace,
			PoseWindow:   cfg.Matching.PoseWindow,
		},
	}, pipeline.Deps{
		Frames:     frames,
		Faces:      faces,
		People:     people,
		Matcher:    store,
		Classifier: classifier,
		Recorder:   med,
		Evidence:   recorder,
		Overlays:   rooms,
		Names:      names,
	}, m, logger)
	pipe.Start(ctx)
	defer pipe.Stop()

	frames.OnStatusChange(cameras.SetStatus)
	frames.OnStatusChange(pipe.CameraStatus)
	frames.OnStatusChange(rooms.CameraStatus)
	frames.OnStatusChange(auditSink.CameraStatus)

	sampler := metrics.NewAggregator(m, func() metrics.Snapshot {
		snap := metrics.Snapshot{
			Identities:    store.Identities(),
			Embeddings:    store.Embeddings(),
			IdleConsumers: make(map[string]int),
			Viewers:       make(map[string]int),
		}
		for cameraID, stats := range frames.Stats() {
			for _, c := range stats.Consumers {
				if c.IsIdle {
					snap.IdleConsumers[cameraID]++
				}
			}
			snap.Viewers[cameraID] = rooms.Viewers(cameraID)
		}
		return snap
	}, logger, metrics.DefaultSampleInterval)
	go sampler.Start(ctx)
	defer sampler.Stop()

	router := api.NewRouter(logger, &api.Dependencies{
		Cameras:     cameras,
		Frames:      frames,
		Rooms:       rooms,
		Identities:  store,
		Reloader:    enroll,
		Attendance:  attendanceRepo,
		Alerts:      alertRepo,
		DB:          pool,
		Gatherer:    registry,
		IngestToken: cfg.IngestToken,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	// Producers are gone; stop consumers before the sinks they feed.
	frames.Close()
	pipe.Stop()
	med.Wait()
	fanout.Close()

	logger.Info("server stopped")
	return nil
}

// enrollment keeps the matcher, the display-name cache and the audit trail
// in step when the enrolled population changes.
type enrollment struct {
	loader *identity.Loader
	names  *cache.Names
	audit  *audit.Sink
}

func (e *enrollment) Reload(ctx context.Context) (int, error) {
	n, err := e.loader.Reload(ctx)
	if err == nil {
		e.names.Flush()
	}
	e.audit.IdentitiesReloaded(ctx, n, err)
	return n, err
}

func (e *enrollment) Refresh(ctx context.Context, identityID string) error {
	err := e.loader.Refresh(ctx, identityID)
	e.names.Forget(identityID)
	return err
}
