// Package app wires the parking service together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/parkcast/api/spots"
	"github.com/kilianp07/parkcast/config"
	"github.com/kilianp07/parkcast/core/calibration"
	"github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/ingest"
	coremetrics "github.com/kilianp07/parkcast/core/metrics"
	"github.com/kilianp07/parkcast/core/monitoring"
	"github.com/kilianp07/parkcast/core/prediction"
	"github.com/kilianp07/parkcast/core/query"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/infra/logger"
	"github.com/kilianp07/parkcast/infra/metrics"
	infmonitoring "github.com/kilianp07/parkcast/infra/monitoring"
	"github.com/kilianp07/parkcast/infra/mqtt"
	"github.com/kilianp07/parkcast/infra/redis"
	"github.com/kilianp07/parkcast/internal/eventbus"
	"github.com/kilianp07/parkcast/jobs/occupancy"
)

// Service owns the snapshot store and every transport feeding or reading it.
type Service struct {
	cfg *config.Config
	log logger.Logger

	Store       *snapshot.Store
	History     history.Log
	Calibration *calibration.Table
	Predictor   *prediction.Adapter
	Engine      *query.Engine
	Ingest      *ingest.Handler
	Sink        coremetrics.MetricsSink
	Events      *eventbus.TypedBus[snapshot.SnapshotUpdated]
	Reporter    *occupancy.Reporter
	Handler     http.Handler
}

// New builds the core components. Network transports (MQTT, Redis, the HTTP
// listeners) are only opened by Run.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	mon, err := infmonitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	backend, err := prediction.NewModel(cfg.Prediction.Module())
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Prediction.Options()
	if err != nil {
		return nil, err
	}
	predictor := prediction.NewAdapter(backend, opts)

	calib, err := calibration.Load(cfg.Calibration.Path)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	hist, err := history.NewLog(cfg.History.Module())
	if err != nil {
		closeSink(sink)
		return nil, err
	}

	bus := eventbus.NewTyped[snapshot.SnapshotUpdated]()
	store := snapshot.NewStore(hist, snapshot.WithEvents(bus))
	handler := ingest.NewHandler(store, calib, logger.New("ingest"), ingest.WithMetrics(sink))
	engine := query.NewEngine(store, predictor, logger.New("query"),
		query.WithMetrics(sink),
		query.WithArrivalOffset(cfg.Server.ArrivalOffset()),
	)

	s := &Service{
		cfg:         cfg,
		log:         log,
		Store:       store,
		History:     hist,
		Calibration: calib,
		Predictor:   predictor,
		Engine:      engine,
		Ingest:      handler,
		Sink:        sink,
		Events:      bus,
		Reporter:    occupancy.NewReporter(store, sink, logger.New("occupancy")),
	}
	s.Handler = spots.NewRouter(spots.Deps{
		Engine:         engine,
		Ingester:       handler,
		History:        hist,
		HistoryToken:   cfg.Server.HistoryToken,
		Snapshots:      store,
		Events:         bus,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Location:       opts.Location,
		Log:            logger.New("http"),
	})
	log.Infof("prediction backend %s, %d calibrated spots, history %s", predictor.ModelName(), calib.Len(), cfg.History.Type)
	if b, ok := calib.Bounds(); ok {
		log.Infof("calibrated area lat [%.6f, %.6f] lng [%.6f, %.6f]", b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	}
	return s, nil
}

// Restore replays the history log into the snapshot store and returns the
// number of cameras rebuilt.
func (s *Service) Restore(ctx context.Context) (int, error) {
	recs, err := s.History.Query(ctx, history.Query{Start: s.cfg.History.RestoreSince(time.Now())})
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	n := s.Store.Restore(recs)
	s.log.Infof("restored %d cameras from %d history records", n, len(recs))
	return n, nil
}

// Run serves every configured transport until ctx is canceled or one of
// them fails.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.History.RestoreOnStart {
		if _, err := s.Restore(ctx); err != nil {
			s.log.Errorf("%v", err)
			monitoring.CaptureException(err, map[string]string{"component": "restore"})
		}
	}

	var cli *mqtt.PahoClient
	if s.cfg.MQTT.Enabled() {
		var err error
		if cli, err = mqtt.NewPahoClient(s.cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		defer cli.Disconnect()
	}
	var mirror *redis.Mirror
	if s.cfg.Redis.Enabled() {
		var err error
		if mirror, err = redis.NewMirror(ctx, s.cfg.Redis); err != nil {
			return fmt.Errorf("redis mirror: %w", err)
		}
		defer func() { _ = mirror.Close() }()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serveHTTP(ctx) })
	metrics.StartOccupancyCollector(ctx, s.Events, s.Sink)
	if s.cfg.Metrics.PrometheusAddr != "" {
		g.Go(func() error { return metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr) })
	}
	if !s.cfg.Report.Disabled {
		g.Go(func() error { return s.Reporter.Start(ctx, s.cfg.Report.Schedule) })
	}
	if cli != nil {
		g.Go(func() error {
			return mqtt.NewAnalysisSubscriber(cli, s.cfg.MQTT.AnalysisTopic, s.Ingest).Start(ctx)
		})
		if s.cfg.MQTT.PublishSnapshots {
			g.Go(func() error {
				return mqtt.NewSnapshotPublisher(cli, s.cfg.MQTT.SnapshotPrefix, s.Events).Start(ctx)
			})
		}
	}
	if mirror != nil {
		g.Go(func() error { return mirror.Start(ctx, s.Events) })
	}
	return g.Wait()
}

func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving API on %s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Events.Close()
	closeSink(s.Sink)
	monitoring.Flush(2 * time.Second)
	return s.History.Close()
}

func closeSink(sink coremetrics.MetricsSink) {
	if c, ok := sink.(interface{ Close() }); ok {
		c.Close()
	}
}
